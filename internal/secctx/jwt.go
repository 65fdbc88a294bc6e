package secctx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// allowedAlgorithms is the startup-declared set spec §4.E step 2 names:
// "supported algorithms declared at startup: RS256/384/512, EdDSA".
var allowedAlgorithms = []string{"RS256", "RS384", "RS512", "EdDSA"}

// Claims is the subset of token claims the pipeline consumes. Generalized
// from the teacher's Casdoor-specific OAuth2JWTToken (groups/scope/domain)
// to the tenant/role/permission claim shape this spec's subject assembly
// needs (spec §4.E step 3).
type Claims struct {
	jwt.RegisteredClaims

	TenantID    string   `json:"tenant_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	CanElevate  []string `json:"can_elevate"`
}

// Authenticator verifies bearer JWTs against a KeyStore (spec §4.E step 2).
type Authenticator struct {
	keys KeyStore
}

func NewAuthenticator(keys KeyStore) *Authenticator {
	return &Authenticator{keys: keys}
}

// Authenticate parses and verifies tokenString, rejecting on bad
// signature, unknown key id, unsupported algorithm, or expiry.
func (a *Authenticator) Authenticate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, a.keyFunc, jwt.WithValidMethods(allowedAlgorithms))
	if err != nil {
		return nil, rcerrors.Authentication("secctx.invalid_token", "%s", err.Error())
	}

	if !token.Valid {
		return nil, rcerrors.Authentication("secctx.invalid_token", "token failed validation")
	}

	return claims, nil
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("kid header not present")
	}

	key, err := a.keys.Lookup(kid)
	if err != nil {
		return nil, err
	}

	if key.Algorithm != token.Method.Alg() {
		return nil, fmt.Errorf("key %q is not valid for algorithm %s", kid, token.Method.Alg())
	}

	return key.PublicKey, nil
}

// SubjectFromClaims assembles a Subject from verified claims, enforcing
// spec §4.E step 3's tenant-scope check against the request's target
// tenant (derived from the route, e.g. a path segment — pathTenantID).
func SubjectFromClaims(claims *Claims, pathTenantID string) (Subject, error) {
	if pathTenantID != "" && claims.TenantID != pathTenantID {
		return Subject{}, rcerrors.Authorization("secctx.tenant_mismatch", "token tenant %q does not match request tenant %q", claims.TenantID, pathTenantID)
	}

	return Subject{
		TenantID:    claims.TenantID,
		UserID:      claims.Subject,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		CanElevate:  claims.CanElevate,
	}, nil
}

// ExpiresWithin reports whether claims' expiry is within d of now — used
// by callers that want to warn on near-expiry tokens; not itself part of
// the decision chain (jwt.ParseWithClaims already rejects expired tokens).
func ExpiresWithin(claims *Claims, now time.Time, d time.Duration) bool {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Time.Sub(now) <= d
}
