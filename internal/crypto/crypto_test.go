package crypto_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustcare/core/internal/crypto"
)

func TestConstantTimeEqualEqualSlices(t *testing.T) {
	a := []byte("supersecretvalue")
	b := append([]byte(nil), a...)

	assert.True(t, crypto.ConstantTimeEqual(a, b))
}

func TestConstantTimeEqualDifferingLengthsNeverPanics(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
	}{
		{"empty vs non-empty", []byte{}, []byte("x")},
		{"short vs long", []byte("abc"), []byte("abcdef")},
		{"nil vs nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				crypto.ConstantTimeEqual(tt.a, tt.b)
			})
		})
	}

	assert.False(t, crypto.ConstantTimeEqual([]byte("abc"), []byte("abcdef")))
	assert.True(t, crypto.ConstantTimeEqual(nil, []byte{}))
}

func TestConstantTimeEqualDiffersOnContent(t *testing.T) {
	assert.False(t, crypto.ConstantTimeEqual([]byte("aaaa"), []byte("aaab")))
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	plaintexts := [][]byte{
		{},
		[]byte("short"),
		bytes.Repeat([]byte{0x42}, 10*1024*1024),
	}

	for _, pt := range plaintexts {
		ct, err := crypto.Seal(key, pt, []byte("ctx:tenant-1"))
		require.NoError(t, err)

		got, err := crypto.Open(key, ct, []byte("ctx:tenant-1"))
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestOpenFailsOnContextMismatch(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	ct, err := crypto.Seal(key, []byte("hello"), []byte("ctx:a"))
	require.NoError(t, err)

	_, err = crypto.Open(key, ct, []byte("ctx:b"))
	assert.Error(t, err)
}

func TestHashPasswordVerify(t *testing.T) {
	params := crypto.DefaultArgon2Params()
	params.MemoryKiB = 8 * 1024 // cheaper for test speed
	params.TimeCost = 1

	hashed, err := crypto.HashPassword([]byte("correct horse"), params)
	require.NoError(t, err)

	assert.True(t, crypto.VerifyPassword([]byte("correct horse"), hashed, params))
	assert.False(t, crypto.VerifyPassword([]byte("wrong horse"), hashed, params))
}

func TestDeriveSubkeyDeterministic(t *testing.T) {
	secret := []byte("root-secret")

	k1, err := crypto.DeriveSubkey(secret, []byte("salt"), []byte("field:ssn"), 32)
	require.NoError(t, err)

	k2, err := crypto.DeriveSubkey(secret, []byte("salt"), []byte("field:ssn"), 32)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)

	k3, err := crypto.DeriveSubkey(secret, []byte("salt"), []byte("field:dob"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestSecureBufferZeroizesOnDestroy(t *testing.T) {
	buf, err := crypto.NewSecureBuffer(32, crypto.MemoryPolicy{AllowDegradeOnMlockDenied: true})
	require.NoError(t, err)

	copy(buf.Bytes(), bytes.Repeat([]byte{0x7A}, 32))
	assert.Equal(t, byte(0x7A), buf.Bytes()[0])

	buf.Destroy()
	assert.Nil(t, buf.Bytes())

	// idempotent
	assert.NotPanics(t, buf.Destroy)
}

func TestSecureBufferWithGuardPages(t *testing.T) {
	buf, err := crypto.NewSecureBuffer(crypto.KeySize, crypto.MemoryPolicy{
		AllowDegradeOnMlockDenied: true,
		GuardPages:                true,
	})
	require.NoError(t, err)
	defer buf.Destroy()

	assert.Len(t, buf.Bytes(), crypto.KeySize)
}
