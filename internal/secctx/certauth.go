package secctx

import (
	"context"
	"crypto/x509"

	"github.com/golang-jwt/jwt/v5"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// CertificateRecord is one row of the active certificate table spec §4.E
// step 2's certificate-auth branch checks a presented leaf's serial number
// against.
type CertificateRecord struct {
	Serial      string
	TenantID    string
	UserID      string
	Role        string
	Permissions []string
	CanElevate  []string
	Revoked     bool
}

// CertificateStore resolves a certificate serial number to its active
// certificate table row — the analog of KeyStore for the mTLS auth path.
type CertificateStore interface {
	Lookup(ctx context.Context, serial string) (*CertificateRecord, error)
}

// CertAuthenticator implements spec §4.E step 2's "On certificate auth,
// verify chain and serial against the active certificate table" branch,
// sibling to Authenticator's bearer-JWT path. It is transport-agnostic:
// the caller (pkg/nethttp) is responsible for surfacing the peer's
// presented chain from the TLS connection state into a Request.
type CertAuthenticator struct {
	roots *x509.CertPool
	store CertificateStore
}

// NewCertAuthenticator builds a CertAuthenticator that verifies presented
// chains against roots (the configured trusted CA pool, spec §6's
// MTLS_CLIENT_CA_FILE) and resolves the leaf serial against store.
func NewCertAuthenticator(roots *x509.CertPool, store CertificateStore) *CertAuthenticator {
	return &CertAuthenticator{roots: roots, store: store}
}

// Authenticate verifies chain — leaf first, any intermediates following —
// against the configured root pool, then looks the leaf's serial number up
// in the active certificate table, rejecting on a broken chain, an unknown
// serial, or a revoked certificate. On success it returns Claims shaped
// identically to the bearer-JWT path, so subject assembly (SubjectFromClaims)
// and everything downstream of step 2 is authentication-method-agnostic.
func (a *CertAuthenticator) Authenticate(ctx context.Context, chain []*x509.Certificate) (*Claims, error) {
	if len(chain) == 0 {
		return nil, rcerrors.Authentication("secctx.no_client_certificate", "no client certificate presented")
	}

	leaf := chain[0]

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         a.roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}); err != nil {
		return nil, rcerrors.Authentication("secctx.certificate_chain_invalid", "certificate chain verification failed: %s", err.Error())
	}

	serial := leaf.SerialNumber.String()

	record, err := a.store.Lookup(ctx, serial)
	if err != nil {
		return nil, rcerrors.Authentication("secctx.certificate_lookup_failed", "%s", err.Error())
	}
	if record == nil {
		return nil, rcerrors.Authentication("secctx.certificate_unknown", "certificate serial %q is not in the active certificate table", serial)
	}
	if record.Revoked {
		return nil, rcerrors.Authentication("secctx.certificate_revoked", "certificate serial %q has been revoked", serial)
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: record.UserID},
		TenantID:         record.TenantID,
		Role:             record.Role,
		Permissions:      record.Permissions,
		CanElevate:       record.CanElevate,
	}, nil
}
