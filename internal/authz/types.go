// Package authz implements the relationship-based (Zanzibar-style)
// authorization engine: a tuple store over a compile-time namespace schema,
// with check/expand/lookup_resources evaluation, zookie-based monotonic
// reads, and decision/expansion caching.
package authz

import "time"

// ObjectRef identifies an object a tuple or check is about.
type ObjectRef struct {
	Namespace string
	Type      string
	ID        string
}

// SubjectRef is either a concrete subject (Relation empty) or a userset —
// "all subjects having Relation on (Type, ID)" — when Relation is set.
type SubjectRef struct {
	Type     string
	ID       string
	Relation string
}

// IsUserset reports whether this subject reference names a userset rather
// than a concrete principal.
func (s SubjectRef) IsUserset() bool {
	return s.Relation != ""
}

// Tuple is the unit of authorization state: "subject has relation on
// object", optionally tenant- and time-scoped (spec §3).
type Tuple struct {
	TenantID  string
	Subject   SubjectRef
	Relation  string
	Object    ObjectRef
	ExpiresAt *time.Time
}

// Expired reports whether the tuple is expired as of asOf. A tuple with no
// ExpiresAt never expires.
func (t Tuple) Expired(asOf time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(asOf)
}

// TupleDelta is one entry of a write batch: a tuple to insert (Remove
// false) or tombstone (Remove true). Per spec §4.C, write([+tuple]|[-tuple])
// is atomic within a tenant.
type TupleDelta struct {
	Tuple  Tuple
	Remove bool
}
