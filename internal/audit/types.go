package audit

import "time"

// Kind distinguishes the two retention/partitioning regimes: PHI access
// records (monthly collections, ≥7 year retention) and session/auth events
// (daily collections, shorter retention).
type Kind string

const (
	KindPHIAccess Kind = "phi_access"
	KindSession   Kind = "session"
)

// Record is the append-only audit entry of spec §3 "Audit record": every
// masking decision that touches a field of sensitivity ≥ Confidential, and
// every authentication/authorization/break-glass event, writes one of
// these. Records are never mutated after being written.
type Record struct {
	Kind Kind

	TenantID       string
	SubjectType    string
	SubjectID      string
	FieldPath      string
	RecordID       string
	MaskApplied    string
	Reason         string
	ZanzibarChecks []string
	EvaluationMS   float64
	Timestamp      time.Time
	IP             string

	// RequestID and OverrideID correlate every decision taken under one
	// request or one break-glass override, per spec §9 "Break-glass
	// auditability": a post-facto query `audit WHERE override_id = X`
	// must reconstruct the complete exposure.
	RequestID  string
	OverrideID string
	Elevated   bool
	Role       string
}
