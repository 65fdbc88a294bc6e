// Package masking implements the per-field Masking Engine (spec §4.D): a
// policy-driven decision chain that picks a MaskPattern for a classified
// field value, combining static permissions, Zanzibar relationship checks,
// time constraints, and break-glass overrides, and audits every decision
// that touches a field of sensitivity Confidential or above.
package masking

import "time"

// MaskPattern is the sum type of ways a field value can be transformed
// before it leaves the process (spec §4.D). Exactly one field is
// meaningful per Kind.
type Kind string

const (
	KindNone      Kind = "none"
	KindPartial   Kind = "partial"
	KindFull      Kind = "full"
	KindRedacted  Kind = "redacted"
	KindHashed    Kind = "hashed"
	KindTokenized Kind = "tokenized"
)

// MaskPattern carries the parameters for whichever Kind it names. Zero
// value (Kind "") is invalid; use the None/Partial/... constructors.
type MaskPattern struct {
	Kind Kind

	// Partial
	ShowFirst int
	ShowLast  int

	// Hashed
	Algo    string // "sha256" | "sha512"
	SaltRef string

	// Tokenized
	Scheme string
}

func None() MaskPattern     { return MaskPattern{Kind: KindNone} }
func Full() MaskPattern     { return MaskPattern{Kind: KindFull} }
func Redacted() MaskPattern { return MaskPattern{Kind: KindRedacted} }

func Partial(showFirst, showLast int) MaskPattern {
	return MaskPattern{Kind: KindPartial, ShowFirst: showFirst, ShowLast: showLast}
}

func Hashed(algo, saltRef string) MaskPattern {
	return MaskPattern{Kind: KindHashed, Algo: algo, SaltRef: saltRef}
}

func Tokenized(scheme string) MaskPattern {
	return MaskPattern{Kind: KindTokenized, Scheme: scheme}
}

// TimeConstraint restricts a policy to a window of hours/days in a named
// IANA timezone (spec §4.D rule 2). Zero value (Days nil) means
// unconstrained.
type TimeConstraint struct {
	Timezone  string
	Days      []time.Weekday
	StartHour int // inclusive, 0-23, local to Timezone
	EndHour   int // exclusive, 0-24
}

// Allows reports whether t, interpreted in the constraint's timezone,
// falls within the allowed window.
func (c TimeConstraint) Allows(t time.Time) bool {
	if len(c.Days) == 0 {
		return true
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}

	local := t.In(loc)

	dayOK := false
	for _, d := range c.Days {
		if local.Weekday() == d {
			dayOK = true
			break
		}
	}

	if !dayOK {
		return false
	}

	hour := local.Hour()

	return hour >= c.StartHour && hour < c.EndHour
}

// ZanzibarCheck is one entry of a policy's ordered relation-check list
// (spec §4.D rule 4): "does subject hold Relation on the record's
// ObjectType/ObjectID", evaluated first-match-wins.
type ZanzibarCheck struct {
	Relation    string
	ObjectType  string
	MaskOnMatch MaskPattern
}

// Policy is a masking policy row (spec §3 "Masking policy"). OrgID empty
// means the global default; a non-empty OrgID overrides it for that
// tenant. Only the highest-Revision active row for a given (OrgID,
// FieldPath) is effective.
type Policy struct {
	ID               string
	OrgID            string // "" = global default
	FieldPath        string
	Revision         int64
	Active           bool
	BaseMask         MaskPattern
	UnmaskedPerms    []string
	PartialPerms     map[string]MaskPattern
	StrictRelation   string // non-empty: rule 3 applies
	ZanzibarChecks   []ZanzibarCheck
	TimeConstraint   *TimeConstraint
	EncryptionReqd   bool
	AuditRequired    bool
}

// Override is a break-glass/emergency grant (spec §3 "Masking override").
// Hard bound: ValidUntil - ValidFrom <= 8h, enforced by the store at
// write time, not re-checked here.
type Override struct {
	ID            string
	PolicyID      string
	Subject       string
	Reason        string
	ValidFrom     time.Time
	ValidUntil    time.Time
	ApprovalState string // "pending" | "approved" | "denied" | "revoked"
	NewMask       *MaskPattern
	AccessCount   int64
}

// Active reports whether the override is approved and asOf falls within
// its validity window (spec §4.D rule 1).
func (o Override) Active(asOf time.Time) bool {
	return o.ApprovalState == "approved" &&
		!asOf.Before(o.ValidFrom) &&
		asOf.Before(o.ValidUntil)
}
