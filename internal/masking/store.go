package masking

import (
	"context"
	"time"
)

// PolicyStore resolves masking policies (spec §3 "Masking policy",
// §4.D "Policy selection"). Production wiring is PostgresPolicyStore;
// tests use an in-memory fake.
type PolicyStore interface {
	// ActivePolicy resolves the effective policy for fieldPath within
	// tenantID: the highest-revision active tenant-override row if one
	// exists, else the highest-revision active global-default row
	// (OrgID ""). Returns (nil, nil) if no policy is declared at all;
	// the caller (Engine) treats that as a fatal masking.policy_not_found
	// error for every field.
	ActivePolicy(ctx context.Context, tenantID, fieldPath string) (*Policy, error)
}

// OverrideStore resolves and mutates break-glass overrides (spec §3
// "Masking override", §4.D rule 1).
type OverrideStore interface {
	// ActiveOverride returns the approved override in effect for
	// (policyID, subject) at asOf, if any.
	ActiveOverride(ctx context.Context, tenantID, policyID, subject string, asOf time.Time) (*Override, error)

	// IncrementAccessCount records one use of the override (spec §4.D
	// rule 1: "Increment the override's access counter").
	IncrementAccessCount(ctx context.Context, tenantID, overrideID string) error
}
