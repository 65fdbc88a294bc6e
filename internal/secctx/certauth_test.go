package secctx

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCertificateStore struct {
	record *CertificateRecord
	err    error
}

func (f *fakeCertificateStore) Lookup(ctx context.Context, serial string) (*CertificateRecord, error) {
	return f.record, f.err
}

// issueTestCertPair builds a self-signed CA and a leaf certificate it
// signs, returning both parsed certificates plus a pool containing the CA.
func issueTestCertPair(t *testing.T, serial int64) (*x509.Certificate, *x509.CertPool) {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caTemplate, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	leafCert, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(caCert)

	return leafCert, roots
}

func TestCertAuthenticatorAuthenticateSucceedsForActiveCertificate(t *testing.T) {
	leaf, roots := issueTestCertPair(t, 42)
	store := &fakeCertificateStore{record: &CertificateRecord{
		TenantID: "tenant-a",
		UserID:   "user-1",
		Role:     "nurse",
	}}
	auth := NewCertAuthenticator(roots, store)

	claims, err := auth.Authenticate(context.Background(), []*x509.Certificate{leaf})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, "nurse", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestCertAuthenticatorRejectsEmptyChain(t *testing.T) {
	auth := NewCertAuthenticator(x509.NewCertPool(), &fakeCertificateStore{})

	_, err := auth.Authenticate(context.Background(), nil)
	require.Error(t, err)
}

func TestCertAuthenticatorRejectsChainNotSignedByTrustedRoot(t *testing.T) {
	leaf, _ := issueTestCertPair(t, 1)
	untrustedRoots := x509.NewCertPool() // deliberately not the issuing CA

	auth := NewCertAuthenticator(untrustedRoots, &fakeCertificateStore{})

	_, err := auth.Authenticate(context.Background(), []*x509.Certificate{leaf})
	require.Error(t, err)
}

func TestCertAuthenticatorRejectsUnknownSerial(t *testing.T) {
	leaf, roots := issueTestCertPair(t, 7)
	auth := NewCertAuthenticator(roots, &fakeCertificateStore{record: nil})

	_, err := auth.Authenticate(context.Background(), []*x509.Certificate{leaf})
	require.Error(t, err)
}

func TestCertAuthenticatorRejectsRevokedCertificate(t *testing.T) {
	leaf, roots := issueTestCertPair(t, 9)
	auth := NewCertAuthenticator(roots, &fakeCertificateStore{record: &CertificateRecord{Revoked: true}})

	_, err := auth.Authenticate(context.Background(), []*x509.Certificate{leaf})
	require.Error(t, err)
}

func TestCertAuthenticatorPropagatesStoreFailure(t *testing.T) {
	leaf, roots := issueTestCertPair(t, 11)
	auth := NewCertAuthenticator(roots, &fakeCertificateStore{err: assertErr{}})

	_, err := auth.Authenticate(context.Background(), []*x509.Certificate{leaf})
	require.Error(t, err)
}
