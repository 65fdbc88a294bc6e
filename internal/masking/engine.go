package masking

import (
	"context"
	"sort"
	"time"

	"github.com/rustcare/core/internal/audit"
	"github.com/rustcare/core/internal/authz"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

// RelationChecker is the narrow slice of authz.Evaluator the engine
// depends on (spec §4.D rule 4 "consult §4.C check(subject, rel, obj)").
// *authz.Evaluator satisfies this directly.
type RelationChecker interface {
	Check(ctx context.Context, tenantID string, subject authz.SubjectRef, relation string, object authz.ObjectRef, opts authz.CheckOptions) (bool, error)
}

// AuditEnqueuer is the narrow slice of audit.Queue the engine depends on.
type AuditEnqueuer interface {
	Enqueue(record audit.Record) error
}

// EvalRequest carries everything one masking decision needs. AsOf must be
// the request-pinned timestamp (spec §8 "Masking decisions within one
// request observe the request-pinned timestamp") — callers must reuse the
// same AsOf across every field evaluated within one request.
type EvalRequest struct {
	TenantID  string
	Subject   authz.SubjectRef
	FieldPath string
	RecordID  string

	// Object identifies the record for Zanzibar checks (spec §4.D rule
	// 4): ZanzibarCheck.ObjectType combined with Object.ID form the
	// authz.ObjectRef being checked.
	Object authz.ObjectRef

	Value              string
	SubjectPermissions []string
	AsOf               time.Time
	RequestID          string
	Role               string
}

// Result is the outcome of one field evaluation.
type Result struct {
	Pattern MaskPattern
	Value   string
	Reason  string
}

// Engine implements the Masking Engine's decision chain (spec §4.D).
type Engine struct {
	policies  PolicyStore
	overrides OverrideStore
	checker   RelationChecker
	auditq    AuditEnqueuer

	policyCache   *PolicyCache
	decisionCache *DecisionCache

	salts     SaltSource
	tokenizer Tokenizer
}

// NewEngine builds an Engine. policyCache/decisionCache/salts/tokenizer
// may be nil (caches degrade to always-miss; Hashed/Tokenized patterns
// become fatal if actually exercised without their resolvers).
func NewEngine(policies PolicyStore, overrides OverrideStore, checker RelationChecker, auditq AuditEnqueuer, policyCache *PolicyCache, decisionCache *DecisionCache, salts SaltSource, tokenizer Tokenizer) *Engine {
	return &Engine{
		policies:      policies,
		overrides:     overrides,
		checker:       checker,
		auditq:        auditq,
		policyCache:   policyCache,
		decisionCache: decisionCache,
		salts:         salts,
		tokenizer:     tokenizer,
	}
}

// Evaluate runs the full decision chain and returns the masked value. On
// audit-queue saturation the caller still gets a value back — Redacted —
// alongside a non-nil error, per spec §4.D "on queue saturation, the
// decision fails closed (caller sees Redacted plus an internal error)".
func (e *Engine) Evaluate(ctx context.Context, req EvalRequest) (Result, error) {
	policy, err := e.resolvePolicy(ctx, req.TenantID, req.FieldPath)
	if err != nil {
		return Result{}, err
	}

	if policy == nil {
		return Result{}, rcerrors.Internal("masking.policy_not_found", nil)
	}

	pattern, reason, overridden, err := e.checkOverride(ctx, req, policy)
	if err != nil {
		return Result{}, err
	}

	if !overridden {
		if cached, ok := e.decisionCacheGet(ctx, req); ok {
			pattern, reason = *cached, "cache_hit"
		} else {
			pattern, reason = e.computeFresh(ctx, req, policy)
			e.decisionCachePut(ctx, req, pattern)
		}
	}

	value, err := Apply(pattern, req.Value, e.salts, e.tokenizer)
	if err != nil {
		return Result{}, err
	}

	auditErr := e.emitAudit(req, policy, pattern, reason)
	if auditErr != nil {
		return Result{Pattern: Redacted(), Value: redactedToken, Reason: "audit_queue_saturated"}, auditErr
	}

	return Result{Pattern: pattern, Value: value, Reason: reason}, nil
}

func (e *Engine) resolvePolicy(ctx context.Context, tenantID, fieldPath string) (*Policy, error) {
	if cached, ok := e.policyCacheGet(ctx, tenantID, fieldPath); ok {
		return cached, nil
	}

	policy, err := e.policies.ActivePolicy(ctx, tenantID, fieldPath)
	if err != nil {
		return nil, rcerrors.Internal("masking.policy_resolve", err)
	}

	if policy != nil {
		e.policyCachePut(ctx, tenantID, fieldPath, policy)
	}

	return policy, nil
}

// checkOverride implements rule 1. It is always evaluated fresh — never
// through the decision cache, since overrides change far more often than
// the 60s TTL would track (spec §4.D "Decision cache... never populated
// from rule 1").
func (e *Engine) checkOverride(ctx context.Context, req EvalRequest, policy *Policy) (MaskPattern, string, bool, error) {
	if e.overrides == nil {
		return MaskPattern{}, "", false, nil
	}

	override, err := e.overrides.ActiveOverride(ctx, req.TenantID, policy.ID, subjectKey(req.Subject), req.AsOf)
	if err != nil {
		return MaskPattern{}, "", false, rcerrors.Internal("masking.override_resolve", err)
	}

	if override == nil || !override.Active(req.AsOf) {
		return MaskPattern{}, "", false, nil
	}

	pattern := None()
	if override.NewMask != nil {
		pattern = *override.NewMask
	}

	// Access-count bookkeeping never blocks the read.
	_ = e.overrides.IncrementAccessCount(ctx, req.TenantID, override.ID)

	return pattern, "override", true, nil
}

// computeFresh implements rules 2-6, for when neither an override nor a
// cached decision applies.
func (e *Engine) computeFresh(ctx context.Context, req EvalRequest, policy *Policy) (MaskPattern, string) {
	if policy.TimeConstraint != nil && !policy.TimeConstraint.Allows(req.AsOf) {
		return Redacted(), "time_constraint"
	}

	matched := false
	degraded := false
	var matchedMask MaskPattern

	for _, zc := range policy.ZanzibarChecks {
		object := req.Object
		object.Type = zc.ObjectType

		ok, err := e.checker.Check(ctx, req.TenantID, req.Subject, zc.Relation, object, authz.CheckOptions{AsOf: req.AsOf})
		if err != nil {
			degraded = true
			break
		}

		if ok {
			matched = true
			matchedMask = zc.MaskOnMatch
			break
		}
	}

	if degraded {
		return e.staticFallback(req, policy), "zanzibar-degraded"
	}

	if policy.StrictRelation != "" && !matched {
		return policy.BaseMask, "strict_denial"
	}

	if matched {
		return matchedMask, "zanzibar_match"
	}

	return e.staticFallback(req, policy), "static_fallback"
}

func (e *Engine) staticFallback(req EvalRequest, policy *Policy) MaskPattern {
	for _, perm := range req.SubjectPermissions {
		if contains(policy.UnmaskedPerms, perm) {
			return None()
		}
	}

	keys := make([]string, 0, len(policy.PartialPerms))
	for k := range policy.PartialPerms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if contains(req.SubjectPermissions, k) {
			return policy.PartialPerms[k]
		}
	}

	return policy.BaseMask
}

func (e *Engine) emitAudit(req EvalRequest, policy *Policy, pattern MaskPattern, reason string) error {
	if !policy.AuditRequired || e.auditq == nil {
		return nil
	}

	record := audit.Record{
		Kind:           audit.KindPHIAccess,
		TenantID:       req.TenantID,
		SubjectType:    req.Subject.Type,
		SubjectID:      req.Subject.ID,
		FieldPath:      req.FieldPath,
		RecordID:       req.RecordID,
		MaskApplied:    string(pattern.Kind),
		Reason:         reason,
		ZanzibarChecks: zanzibarRelationNames(policy.ZanzibarChecks),
		Timestamp:      req.AsOf,
		RequestID:      req.RequestID,
		Role:           req.Role,
	}

	return e.auditq.Enqueue(record)
}

func zanzibarRelationNames(checks []ZanzibarCheck) []string {
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = c.Relation
	}

	return names
}

func subjectKey(s authz.SubjectRef) string {
	return s.Type + ":" + s.ID
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}

	return false
}

func (e *Engine) policyCacheGet(ctx context.Context, tenantID, fieldPath string) (*Policy, bool) {
	if e.policyCache == nil {
		return nil, false
	}

	return e.policyCache.Get(ctx, tenantID, fieldPath)
}

func (e *Engine) policyCachePut(ctx context.Context, tenantID, fieldPath string, policy *Policy) {
	if e.policyCache == nil {
		return
	}

	e.policyCache.Put(ctx, tenantID, fieldPath, policy)
}

func (e *Engine) decisionCacheGet(ctx context.Context, req EvalRequest) (*MaskPattern, bool) {
	if e.decisionCache == nil {
		return nil, false
	}

	return e.decisionCache.Get(ctx, req.TenantID, subjectKey(req.Subject), req.FieldPath, req.RecordID)
}

func (e *Engine) decisionCachePut(ctx context.Context, req EvalRequest, pattern MaskPattern) {
	if e.decisionCache == nil {
		return
	}

	e.decisionCache.Put(ctx, req.TenantID, subjectKey(req.Subject), req.FieldPath, req.RecordID, pattern)
}
