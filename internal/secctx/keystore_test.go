package secctx

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticKeyStoreLookup(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	store := NewStaticKeyStore([]SigningKey{
		{KeyID: "key-1", Algorithm: "EdDSA", PublicKey: pub},
	})

	key, err := store.Lookup("key-1")
	require.NoError(t, err)
	assert.Equal(t, "EdDSA", key.Algorithm)
}

func TestStaticKeyStoreUnknownKeyID(t *testing.T) {
	store := NewStaticKeyStore(nil)

	_, err := store.Lookup("missing")
	require.Error(t, err)
}

func TestStaticKeyStoreEmptySnapshotRejectsAllLookups(t *testing.T) {
	store := &StaticKeyStore{}

	_, err := store.Lookup("anything")
	require.Error(t, err)
}

func TestStaticKeyStoreRotateReplacesSnapshotAtomically(t *testing.T) {
	pub1, _, _ := ed25519.GenerateKey(nil)
	pub2, _, _ := ed25519.GenerateKey(nil)

	store := NewStaticKeyStore([]SigningKey{{KeyID: "a", Algorithm: "EdDSA", PublicKey: pub1}})

	_, err := store.Lookup("a")
	require.NoError(t, err)

	store.Rotate([]SigningKey{{KeyID: "b", Algorithm: "EdDSA", PublicKey: pub2}})

	_, err = store.Lookup("a")
	require.Error(t, err, "retired key should no longer resolve")

	key, err := store.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, pub2, key.PublicKey)
}

func TestParseSigningKeysJSONDecodesRSAAndEdDSA(t *testing.T) {
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rsaPEM := encodePublicKeyPEM(t, &rsaPriv.PublicKey)
	edPEM := encodePublicKeyPEM(t, edPub)

	raw := fmt.Sprintf(`[
		{"kid":"rsa-1","algorithm":"RS256","public_key_pem":%q},
		{"kid":"ed-1","algorithm":"EdDSA","public_key_pem":%q}
	]`, rsaPEM, edPEM)

	keys, err := ParseSigningKeysJSON([]byte(raw))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "rsa-1", keys[0].KeyID)
	assert.Equal(t, "RS256", keys[0].Algorithm)
	assert.Equal(t, "ed-1", keys[1].KeyID)
}

func TestParseSigningKeysJSONRejectsInvalidPEM(t *testing.T) {
	_, err := ParseSigningKeysJSON([]byte(`[{"kid":"bad","algorithm":"RS256","public_key_pem":"not-pem"}]`))
	require.Error(t, err)
}

func encodePublicKeyPEM(t *testing.T, pub any) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}
