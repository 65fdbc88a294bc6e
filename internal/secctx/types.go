// Package secctx implements the Security Context Pipeline (spec §4.E): the
// fixed-order per-request assembly of authentication, subject, rate
// limiting, CSRF posture, authorization precomputation, and RLS session
// projection that every domain handler runs behind.
package secctx

import (
	"context"
	"time"
)

// Subject is the authenticated principal of one request, assembled from
// verified token claims (spec §4.E step 3 "Subject assembly").
type Subject struct {
	TenantID    string
	UserID      string
	Role        string
	Permissions []string
	CanElevate  []string // relations that grant break-glass elevation, e.g. "treating_provider"
}

// RequestContext is the assembled per-request security state, carried on
// context.Context for the remainder of the request's lifetime.
type RequestContext struct {
	RequestID string
	Subject   Subject

	Origin        string
	Referer       string
	RemoteAddr    string
	UserAgent     string
	Timestamp     time.Time

	// AllowedResources is the precomputed result of lookup_resources
	// (spec §4.E step 6), projected into the RLS session as
	// app.allowed_resources.
	AllowedResources []string

	Elevation ElevationState
}

type contextKey struct{}

var ctxKey = contextKey{}

// WithContext attaches rc to ctx.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey, rc)
}

// FromContext retrieves the RequestContext attached by the pipeline, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey).(*RequestContext)
	return rc, ok
}
