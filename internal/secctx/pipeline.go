package secctx

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/rustcare/core/internal/audit"
	"github.com/rustcare/core/internal/authz"
	"github.com/rustcare/core/internal/masking"
	"github.com/rustcare/core/internal/platform/tracing"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

// ResourceResolver abstracts the one authz call the pipeline needs at step
// 6: the set of object ids the subject can reach on relation, used both to
// populate app.allowed_resources and to decide whether an elevation
// request is honored.
type ResourceResolver interface {
	LookupResources(ctx context.Context, tenantID string, subject authz.SubjectRef, relation, objectType string, opts authz.CheckOptions) ([]string, error)
}

// MaskingEngine abstracts the response-masking call at step 9.
type MaskingEngine interface {
	Evaluate(ctx context.Context, req masking.EvalRequest) (masking.Result, error)
}

// Request is the inbound data the pipeline needs, gathered by the
// transport adapter (pkg/nethttp) from the wire request — kept free of any
// http.Request/fiber.Ctx dependency so secctx has no transport import.
type Request struct {
	Method        string
	Host          string
	Origin        string
	Referer       string
	RemoteAddr    string
	UserAgent     string
	BearerToken   string
	PathTenantID  string
	RateLimitKey  string
	CSRFSessionID string
	CSRFToken     string

	// PeerCertificateChain is the client's presented TLS certificate chain
	// (leaf first), surfaced by the transport adapter from the connection's
	// TLS state when mutual TLS is negotiated. Empty for bearer-token
	// requests. Spec §4.E step 2's certificate-auth branch.
	PeerCertificateChain []*x509.Certificate

	// RequestID is the caller-supplied X-Request-ID, if any (spec §4.E
	// step 1 "if client provided one, reuse; else generate a UUIDv4").
	// Left empty, Run synthesizes one via IDGenerator.
	RequestID string

	// ElevationRequest is set when the caller is asking to activate
	// break-glass elevation on this request (e.g. an
	// X-Elevation-Reason header), and is nil otherwise.
	ElevationRequest *ElevationRequest
}

type ElevationRequest struct {
	Scope  string
	Reason string
}

// Config wires the components the pipeline calls into at each step.
type Config struct {
	Authenticator     *Authenticator
	CertAuthenticator *CertAuthenticator
	Limiter           *Limiter
	CSRFIssuer        *TokenIssuer
	SameSitePolicy    SameSitePolicy
	AllowedOrigins    []string // spec §6 ALLOWED_ORIGINS: alternate satisfaction path for step 5's CSRF check
	Resolver          ResourceResolver
	ResourceRelation  string // relation lookup_resources is evaluated on, e.g. "can_view"
	ResourceType      string
	ElevatedRoles     []string
	Projector         *SessionProjector
	Masking           MaskingEngine
	AuditQueue        *audit.Queue
	IDGenerator       func() string
	Clock             func() time.Time
}

// Pipeline implements the 10-step Security Context Pipeline of spec §4.E,
// transport-agnostic: pkg/nethttp's fiber middleware calls Run and
// translates the result (and any step failure) to the wire response.
type Pipeline struct {
	cfg Config
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Pipeline{cfg: cfg}
}

// Outcome is the non-error result of running the pipeline through step 7
// (RLS projection): the caller invokes the domain handler against tx, then
// calls Finish with the handler's response body to run steps 9-10.
type Outcome struct {
	RequestCtx *RequestContext
	Tx         *Tx
	Claims     *Claims
}

// Run executes steps 1-7. A returned error is already classified via
// pkg/errors (Authentication for step 2 failures, Authorization for step
// 3/5, Internal for step 4/6/7 infrastructure failures) and pkg/nethttp
// maps each to the wire status spec §4.E's "Failure semantics" names.
func (p *Pipeline) Run(ctx context.Context, req Request) (outcome *Outcome, err error) {
	ctx, span := tracing.Start(ctx, "secctx.Pipeline.Run")
	defer func() {
		tracing.HandleSpanError(span, "security context pipeline failed", err)
		span.End()
	}()

	// Step 1: reuse the caller-supplied request id, else synthesize one.
	requestID := req.RequestID
	if requestID == "" {
		requestID = p.cfg.IDGenerator()
	}
	now := p.cfg.Clock()

	// Step 2: authentication. Bearer-JWT and certificate/mTLS are mutually
	// exclusive paths — a bearer token, if present, takes precedence.
	var claims *Claims
	switch {
	case req.BearerToken != "":
		claims, err = p.cfg.Authenticator.Authenticate(req.BearerToken)
	case len(req.PeerCertificateChain) > 0:
		if p.cfg.CertAuthenticator == nil {
			return nil, rcerrors.Authentication("secctx.certificate_auth_disabled", "certificate authentication is not configured")
		}
		claims, err = p.cfg.CertAuthenticator.Authenticate(ctx, req.PeerCertificateChain)
	default:
		err = rcerrors.Authentication("secctx.no_credential", "no bearer token or client certificate presented")
	}
	if err != nil {
		return nil, err
	}

	// Step 3: subject assembly, tenant-mismatch rejection.
	subject, err := SubjectFromClaims(claims, req.PathTenantID)
	if err != nil {
		return nil, err
	}

	// Step 4: rate limiting.
	key := req.RateLimitKey
	if key == "" {
		key = subject.TenantID + ":" + subject.UserID
	}
	decision, err := p.cfg.Limiter.Allow(ctx, key)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, rateLimitExceeded(decision)
	}

	// Step 5: CSRF / same-site posture.
	if p.cfg.CSRFIssuer != nil {
		if _, err := Check(p.cfg.CSRFIssuer, req.Method, req.Origin, req.Host, req.CSRFSessionID, req.CSRFToken, p.cfg.SameSitePolicy, p.cfg.AllowedOrigins); err != nil {
			return nil, err
		}
	}

	rc := &RequestContext{
		RequestID:  requestID,
		Subject:    subject,
		Origin:     req.Origin,
		Referer:    req.Referer,
		RemoteAddr: req.RemoteAddr,
		UserAgent:  req.UserAgent,
		Timestamp:  now,
	}

	// Elevation state machine transitions, driven by the caller's
	// request — activation itself (binding to an approved override) is
	// the domain handler's job via internal/masking.Override, since only
	// it knows whether an override was actually approved.
	if req.ElevationRequest != nil {
		if !canElevate(subject, p.cfg.ElevatedRoles) {
			return nil, rcerrors.Authorization("secctx.elevation_not_permitted", "subject is not eligible for break-glass elevation")
		}

		elevated, err := rc.Elevation.Request(req.ElevationRequest.Scope, req.ElevationRequest.Reason, now)
		if err != nil {
			return nil, err
		}
		rc.Elevation = elevated
	}

	// Step 6: authorization precomputation + elevation determination.
	subjectRef := authz.SubjectRef{Type: "user", ID: subject.UserID}
	resources, err := p.cfg.Resolver.LookupResources(ctx, subject.TenantID, subjectRef, p.cfg.ResourceRelation, p.cfg.ResourceType, authz.CheckOptions{AsOf: now})
	if err != nil {
		return nil, rcerrors.Internal("secctx.lookup_resources_failed", err)
	}
	rc.AllowedResources = resources

	// Activation of an already-requested elevation (ElevatedRequested ->
	// ElevatedActive) binds to a specific approved masking.Override and
	// its validity window, which only the domain handler can resolve
	// (internal/masking.OverrideStore.ActiveOverride); the pipeline stops
	// at determining eligibility and leaves activation to the handler.

	// Step 7: RLS session projection.
	tx, err := p.cfg.Projector.Open(ctx, rc)
	if err != nil {
		return nil, err
	}

	return &Outcome{RequestCtx: rc, Tx: tx, Claims: claims}, nil
}

// canElevate reports whether the subject's role or any can_elevate
// relation permits break-glass elevation at all (spec §4.E step 6).
func canElevate(subject Subject, elevatedRoles []string) bool {
	for _, r := range elevatedRoles {
		if subject.Role == r {
			return true
		}
	}

	return len(subject.CanElevate) > 0
}

// FieldMask runs step 9 (response masking) for a single field value.
func (p *Pipeline) FieldMask(ctx context.Context, rc *RequestContext, fieldPath, recordID, value string, object authz.ObjectRef) (result masking.Result, err error) {
	ctx, span := tracing.Start(ctx, "secctx.Pipeline.FieldMask")
	defer func() {
		tracing.HandleSpanError(span, "field mask evaluation failed", err)
		span.End()
	}()

	req := masking.EvalRequest{
		TenantID:           rc.Subject.TenantID,
		Subject:            authz.SubjectRef{Type: "user", ID: rc.Subject.UserID},
		FieldPath:          fieldPath,
		RecordID:           recordID,
		Object:             object,
		Value:              value,
		SubjectPermissions: rc.Subject.Permissions,
		AsOf:               rc.Timestamp,
		RequestID:          rc.RequestID,
		Role:               rc.Subject.Role,
	}

	return p.cfg.Masking.Evaluate(ctx, req)
}

// Finish runs step 10: emitting the session/auth audit record for the
// request itself (distinct from the per-field PHI-access records the
// Masking Engine emits via FieldMask). pkg/nethttp calls it once for every
// request that Run accepted, whatever the handler's outcome; a request Run
// rejects gets no Finish call and leaves no session record.
func (p *Pipeline) Finish(rc *RequestContext, statusCode int, failureReason string) {
	if p.cfg.AuditQueue == nil {
		return
	}

	reason := failureReason
	if reason == "" {
		reason = fmt.Sprintf("status_%d", statusCode)
	}

	record := audit.Record{
		Kind:        audit.KindSession,
		TenantID:    rc.Subject.TenantID,
		SubjectType: "user",
		SubjectID:   rc.Subject.UserID,
		Reason:      reason,
		Timestamp:   rc.Timestamp,
		IP:          rc.RemoteAddr,
		RequestID:   rc.RequestID,
		OverrideID:  rc.Elevation.OverrideID,
		Elevated:    rc.Elevation.Active(rc.Timestamp),
		Role:        rc.Subject.Role,
	}

	_ = p.cfg.AuditQueue.Enqueue(record)
}

func rateLimitExceeded(d Decision) error {
	return rcerrors.RateLimited("secctx.rate_limit_exceeded", int(d.RetryAfter.Seconds()))
}
