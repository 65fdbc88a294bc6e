package authz

import (
	"context"
	"time"
)

// TupleStore is the durable tuple backend the evaluator reads through. The
// production implementation (store_postgres.go) is backed by a single
// normalized table; tests exercise the evaluator against an in-memory fake
// implementing this same interface.
type TupleStore interface {
	// Write atomically applies deltas within tenantID and returns a zookie
	// presentable to later reads for monotonic consistency (spec §4.C).
	Write(ctx context.Context, tenantID string, deltas []TupleDelta) (Zookie, error)

	// TuplesOnRelation returns every unexpired tuple written on
	// (relation, object) within tenantID, as of asOf, observing at least
	// minVersion (0 means "no floor").
	TuplesOnRelation(ctx context.Context, tenantID string, object ObjectRef, relation string, asOf time.Time, minVersion zookieVersion) ([]Tuple, error)

	// ObjectIDsForType enumerates every object id of objectType that has
	// at least one unexpired tuple within tenantID, as of asOf. Used as
	// the candidate set lookup_resources filters via Check.
	ObjectIDsForType(ctx context.Context, tenantID, objectType string, asOf time.Time, minVersion zookieVersion) ([]string, error)
}
