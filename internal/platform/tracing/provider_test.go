package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRegistersGlobally(t *testing.T) {
	provider, err := NewProvider("test-service")
	require.NoError(t, err)
	require.NotNil(t, provider)
	defer func() { _ = Shutdown(context.Background(), provider) }()

	_, span := Start(context.Background(), "test-span")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
}

func TestShutdownHandlesNilProvider(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background(), nil))
}
