package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustcare/core/internal/kms"
)

func testKeyRing(t *testing.T) *kms.KeyRing {
	t.Helper()

	root := make([]byte, 32)
	for i := range root {
		root[i] = byte(i)
	}

	ring, err := kms.NewKeyRing(map[kms.KeyVersion][]byte{1: root}, 1)
	require.NoError(t, err)

	return ring
}

func TestKMSSaltSourceResolveIsDeterministic(t *testing.T) {
	salts := kmsSaltSource{ring: testKeyRing(t)}

	first, err := salts.Resolve("ssn")
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := salts.Resolve("ssn")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKMSSaltSourceResolveDiffersByRef(t *testing.T) {
	salts := kmsSaltSource{ring: testKeyRing(t)}

	ssn, err := salts.Resolve("ssn")
	require.NoError(t, err)

	mrn, err := salts.Resolve("mrn")
	require.NoError(t, err)

	assert.NotEqual(t, ssn, mrn)
}
