package secctx

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRS256(t *testing.T, kid string, claims Claims) (string, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	return signed, priv
}

func signedEdDSA(t *testing.T, kid string, claims Claims) (string, ed25519.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	return signed, pub
}

func baseClaims(now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: "tenant-a",
		Role:     "physician",
	}
}

func TestAuthenticateAcceptsValidRS256Token(t *testing.T) {
	now := time.Now()
	claims := baseClaims(now)
	signed, priv := signedRS256(t, "key-1", claims)

	keys := NewStaticKeyStore([]SigningKey{{KeyID: "key-1", Algorithm: "RS256", PublicKey: &priv.PublicKey}})
	auth := NewAuthenticator(keys)

	got, err := auth.Authenticate(signed)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got.TenantID)
	assert.Equal(t, "user-1", got.Subject)
}

func TestAuthenticateAcceptsValidEdDSAToken(t *testing.T) {
	now := time.Now()
	claims := baseClaims(now)
	signed, pub := signedEdDSA(t, "key-ed", claims)

	keys := NewStaticKeyStore([]SigningKey{{KeyID: "key-ed", Algorithm: "EdDSA", PublicKey: pub}})
	auth := NewAuthenticator(keys)

	got, err := auth.Authenticate(signed)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got.TenantID)
}

func TestAuthenticateRejectsUnknownKeyID(t *testing.T) {
	now := time.Now()
	signed, _ := signedRS256(t, "key-1", baseClaims(now))

	auth := NewAuthenticator(NewStaticKeyStore(nil))

	_, err := auth.Authenticate(signed)
	require.Error(t, err)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	now := time.Now().Add(-2 * time.Hour)
	claims := baseClaims(now)
	signed, priv := signedRS256(t, "key-1", claims)

	keys := NewStaticKeyStore([]SigningKey{{KeyID: "key-1", Algorithm: "RS256", PublicKey: &priv.PublicKey}})
	auth := NewAuthenticator(keys)

	_, err := auth.Authenticate(signed)
	require.Error(t, err)
}

func TestAuthenticateRejectsWrongKeyForAlgorithm(t *testing.T) {
	now := time.Now()
	claims := baseClaims(now)
	signed, priv := signedRS256(t, "key-1", claims)

	// Register the same kid but for a different declared algorithm —
	// the signature still verifies bitwise-differently, so this exercises
	// the "key is not valid for algorithm" guard in keyFunc.
	keys := NewStaticKeyStore([]SigningKey{{KeyID: "key-1", Algorithm: "RS384", PublicKey: &priv.PublicKey}})
	auth := NewAuthenticator(keys)

	_, err := auth.Authenticate(signed)
	require.Error(t, err)
}

func TestAuthenticateRejectsUnsupportedAlgorithm(t *testing.T) {
	now := time.Now()
	claims := baseClaims(now)

	secret := []byte("not-a-public-key-algorithm")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	keys := NewStaticKeyStore(nil)
	auth := NewAuthenticator(keys)

	_, err = auth.Authenticate(signed)
	require.Error(t, err)
}

func TestSubjectFromClaimsRejectsTenantMismatch(t *testing.T) {
	claims := &Claims{TenantID: "tenant-a"}

	_, err := SubjectFromClaims(claims, "tenant-b")
	require.Error(t, err)
}

func TestSubjectFromClaimsAssemblesSubject(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		TenantID:         "tenant-a",
		Role:             "nurse",
		Permissions:      []string{"read:vitals"},
		CanElevate:       []string{"treating_provider"},
	}

	subject, err := SubjectFromClaims(claims, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject.UserID)
	assert.Equal(t, "nurse", subject.Role)
	assert.Equal(t, []string{"read:vitals"}, subject.Permissions)
}

func TestSubjectFromClaimsAllowsEmptyPathTenant(t *testing.T) {
	claims := &Claims{TenantID: "tenant-a"}

	subject, err := SubjectFromClaims(claims, "")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", subject.TenantID)
}

func TestExpiresWithinDetectsNearExpiry(t *testing.T) {
	now := time.Now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Second))}}

	assert.True(t, ExpiresWithin(claims, now, time.Minute))
	assert.False(t, ExpiresWithin(claims, now, time.Second))
}
