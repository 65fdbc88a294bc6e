package logging_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustcare/core/internal/platform/logging"
)

func TestFromContextDefaultsToNoneLogger(t *testing.T) {
	l := logging.FromContext(context.Background())
	assert.IsType(t, logging.NoneLogger{}, l)

	// must not panic even with no sink configured.
	l.Info("hello", logging.F("request_id", "abc"))
}

func TestContextWithLoggerRoundTrips(t *testing.T) {
	base := logging.New()
	ctx := logging.ContextWithLogger(context.Background(), base)

	got := logging.FromContext(ctx)
	assert.Equal(t, base, got)
}
