package authz

import (
	"context"
	"time"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

const defaultMaxDepth = 16

// UsersetTree is the result of Expand: the tree of subjects (concrete and
// userset) reachable through a relation's rewrite (spec §4.C).
type UsersetTree struct {
	Relation string
	Object   ObjectRef
	Direct   []SubjectRef
	Children []*UsersetTree
}

// CheckOptions carries the request-pinned timestamp and an optional zookie
// for monotonic reads (spec §4.C "Consistency").
type CheckOptions struct {
	AsOf   time.Time
	Zookie Zookie
}

// Evaluator implements check/expand/lookup_resources/write/read_at over a
// TupleStore and Schema, with decision and expansion caches and a
// depth-bounded, cycle-safe traversal of rewrite rules.
type Evaluator struct {
	store          TupleStore
	schema         *Schema
	decisionCache  *DecisionCache
	expansionCache *ExpansionCache
	maxDepth       int
}

// NewEvaluator builds an Evaluator. maxDepth <= 0 uses the spec default (16).
func NewEvaluator(store TupleStore, schema *Schema, decisionCache *DecisionCache, expansionCache *ExpansionCache, maxDepth int) *Evaluator {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	return &Evaluator{
		store:          store,
		schema:         schema,
		decisionCache:  decisionCache,
		expansionCache: expansionCache,
		maxDepth:       maxDepth,
	}
}

// visitKey identifies a (subject, relation, object) node for cycle detection.
type visitKey struct {
	subject  SubjectRef
	relation string
	object   ObjectRef
}

// Check decides whether subject has relation on object (spec §4.C).
func (e *Evaluator) Check(ctx context.Context, tenantID string, subject SubjectRef, relation string, object ObjectRef, opts CheckOptions) (bool, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	if e.decisionCache != nil {
		if allowed, ok := e.decisionCache.Get(ctx, tenantID, subject, relation, object, asOf); ok {
			return allowed, nil
		}
	}

	minVersion, err := e.minVersionFor(tenantID, opts.Zookie)
	if err != nil {
		return false, err
	}

	allowed, err := e.check(ctx, tenantID, subject, relation, object, asOf, minVersion, map[visitKey]bool{}, 0)
	if err != nil {
		return false, err
	}

	if e.decisionCache != nil {
		e.decisionCache.Put(ctx, tenantID, subject, relation, object, asOf, allowed)
	}

	return allowed, nil
}

func (e *Evaluator) check(ctx context.Context, tenantID string, subject SubjectRef, relation string, object ObjectRef, asOf time.Time, minVersion zookieVersion, visited map[visitKey]bool, depth int) (bool, error) {
	if depth > e.maxDepth {
		// Pathological schema depth: fail closed, not with an error — a
		// bound this spec treats as "false", not a fault (spec §4.C, §9).
		return false, nil
	}

	key := visitKey{subject, relation, object}
	if visited[key] {
		// Cycle: evaluates to false without error (spec §9).
		return false, nil
	}

	// Mark the node visited only for the duration of this path so a DAG
	// that legitimately reaches the same (subject, relation, object) via
	// two distinct rewrite branches is not mistaken for a cycle.
	visited[key] = true
	defer delete(visited, key)

	rel, err := e.schema.Relation(object.Type, relation)
	if err != nil {
		return false, err
	}

	return e.evalNode(ctx, tenantID, subject, relation, object, rel.Rewrite, asOf, minVersion, visited, depth)
}

func (e *Evaluator) evalNode(ctx context.Context, tenantID string, subject SubjectRef, relation string, object ObjectRef, node RewriteNode, asOf time.Time, minVersion zookieVersion, visited map[visitKey]bool, depth int) (bool, error) {
	switch n := node.(type) {
	case This:
		return e.evalThis(ctx, tenantID, subject, relation, object, asOf, minVersion, visited, depth)

	case ComputedUserset:
		return e.check(ctx, tenantID, subject, n.Relation, object, asOf, minVersion, visited, depth+1)

	case TupleToUserset:
		tuples, err := e.store.TuplesOnRelation(ctx, tenantID, object, n.TuplesetRelation, asOf, minVersion)
		if err != nil {
			return false, err
		}

		for _, t := range tuples {
			x := ObjectRef{Namespace: t.Subject.Type, Type: t.Subject.Type, ID: t.Subject.ID}

			ok, err := e.check(ctx, tenantID, subject, n.ComputedRelation, x, asOf, minVersion, visited, depth+1)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		return false, nil

	case Union:
		for _, child := range n.Children {
			ok, err := e.evalNode(ctx, tenantID, subject, relation, object, child, asOf, minVersion, visited, depth+1)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		return false, nil

	case Intersection:
		for _, child := range n.Children {
			ok, err := e.evalNode(ctx, tenantID, subject, relation, object, child, asOf, minVersion, visited, depth+1)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}

		return true, nil

	case Difference:
		base, err := e.evalNode(ctx, tenantID, subject, relation, object, n.Base, asOf, minVersion, visited, depth+1)
		if err != nil {
			return false, err
		}
		if !base {
			return false, nil
		}

		subtract, err := e.evalNode(ctx, tenantID, subject, relation, object, n.Subtract, asOf, minVersion, visited, depth+1)
		if err != nil {
			return false, err
		}

		return !subtract, nil

	default:
		return false, rcerrors.Internal("authz.unknown_rewrite_node", nil)
	}
}

// evalThis resolves the "this" rewrite node: a direct tuple on (relation,
// object) whose subject either is the concrete subject being checked, or
// is a userset the subject must itself be a member of (spec §4.C step 1).
func (e *Evaluator) evalThis(ctx context.Context, tenantID string, subject SubjectRef, relation string, object ObjectRef, asOf time.Time, minVersion zookieVersion, visited map[visitKey]bool, depth int) (bool, error) {
	tuples, err := e.store.TuplesOnRelation(ctx, tenantID, object, relation, asOf, minVersion)
	if err != nil {
		return false, err
	}

	for _, t := range tuples {
		if !t.Subject.IsUserset() {
			if t.Subject == subject {
				return true, nil
			}
			continue
		}

		if t.Subject.Type == subject.Type && t.Subject.ID == subject.ID && t.Subject.Relation == "" {
			// subject itself, referenced as a userset placeholder — treat
			// as a direct match (defensive; well-formed tuples never do this).
			return true, nil
		}

		usersetObject := ObjectRef{Namespace: t.Subject.Type, Type: t.Subject.Type, ID: t.Subject.ID}

		ok, err := e.check(ctx, tenantID, subject, t.Subject.Relation, usersetObject, asOf, minVersion, visited, depth+1)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// Expand produces the userset tree for (object, relation): the direct
// subjects and sub-trees a check would traverse (spec §4.C). Results are
// cached for ExpansionCache's TTL.
func (e *Evaluator) Expand(ctx context.Context, tenantID string, object ObjectRef, relation string, opts CheckOptions) (*UsersetTree, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	if e.expansionCache != nil {
		if tree, ok := e.expansionCache.Get(ctx, tenantID, object, relation); ok {
			return tree, nil
		}
	}

	minVersion, err := e.minVersionFor(tenantID, opts.Zookie)
	if err != nil {
		return nil, err
	}

	rel, err := e.schema.Relation(object.Type, relation)
	if err != nil {
		return nil, err
	}

	tree, err := e.expandNode(ctx, tenantID, object, relation, rel.Rewrite, asOf, minVersion, map[visitKey]bool{}, 0)
	if err != nil {
		return nil, err
	}

	if e.expansionCache != nil {
		e.expansionCache.Put(ctx, tenantID, object, relation, tree)
	}

	return tree, nil
}

func (e *Evaluator) expandNode(ctx context.Context, tenantID string, object ObjectRef, relation string, node RewriteNode, asOf time.Time, minVersion zookieVersion, visited map[visitKey]bool, depth int) (*UsersetTree, error) {
	tree := &UsersetTree{Relation: relation, Object: object}

	if depth > e.maxDepth {
		return tree, nil
	}

	switch n := node.(type) {
	case This:
		tuples, err := e.store.TuplesOnRelation(ctx, tenantID, object, relation, asOf, minVersion)
		if err != nil {
			return nil, err
		}

		for _, t := range tuples {
			tree.Direct = append(tree.Direct, t.Subject)
		}

	case ComputedUserset:
		child, err := e.expandRelation(ctx, tenantID, object, n.Relation, asOf, minVersion, visited, depth+1)
		if err != nil {
			return nil, err
		}
		tree.Children = append(tree.Children, child)

	case TupleToUserset:
		tuples, err := e.store.TuplesOnRelation(ctx, tenantID, object, n.TuplesetRelation, asOf, minVersion)
		if err != nil {
			return nil, err
		}

		for _, t := range tuples {
			x := ObjectRef{Namespace: t.Subject.Type, Type: t.Subject.Type, ID: t.Subject.ID}

			child, err := e.expandRelation(ctx, tenantID, x, n.ComputedRelation, asOf, minVersion, visited, depth+1)
			if err != nil {
				return nil, err
			}
			tree.Children = append(tree.Children, child)
		}

	case Union, Intersection, Difference:
		for _, child := range combinatorChildren(n) {
			childTree, err := e.expandNode(ctx, tenantID, object, relation, child, asOf, minVersion, visited, depth+1)
			if err != nil {
				return nil, err
			}
			tree.Children = append(tree.Children, childTree)
		}

	default:
		return nil, rcerrors.Internal("authz.unknown_rewrite_node", nil)
	}

	return tree, nil
}

func (e *Evaluator) expandRelation(ctx context.Context, tenantID string, object ObjectRef, relation string, asOf time.Time, minVersion zookieVersion, visited map[visitKey]bool, depth int) (*UsersetTree, error) {
	key := visitKey{SubjectRef{}, relation, object}
	if visited[key] {
		return &UsersetTree{Relation: relation, Object: object}, nil
	}
	visited[key] = true
	defer delete(visited, key)

	rel, err := e.schema.Relation(object.Type, relation)
	if err != nil {
		return nil, err
	}

	return e.expandNode(ctx, tenantID, object, relation, rel.Rewrite, asOf, minVersion, visited, depth)
}

func combinatorChildren(node RewriteNode) []RewriteNode {
	switch n := node.(type) {
	case Union:
		return n.Children
	case Intersection:
		return n.Children
	case Difference:
		return []RewriteNode{n.Base, n.Subtract}
	default:
		return nil
	}
}

// LookupResources enumerates the objects of objectType for which
// check(subject, relation, object) holds (spec §4.C) — used to precompute
// a request's allowed-resources set. This performs a bounded scan of
// candidate object ids followed by a Check per candidate; it trades an
// O(n) scan for the absence of a dedicated reverse index, acceptable at
// this module's scale (bounded by the caching layer for repeat requests).
func (e *Evaluator) LookupResources(ctx context.Context, tenantID string, subject SubjectRef, relation, objectType string, opts CheckOptions) ([]string, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	minVersion, err := e.minVersionFor(tenantID, opts.Zookie)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.ObjectIDsForType(ctx, tenantID, objectType, asOf, minVersion)
	if err != nil {
		return nil, err
	}

	allowed := make([]string, 0, len(candidates))
	for _, id := range candidates {
		object := ObjectRef{Namespace: objectType, Type: objectType, ID: id}

		ok, err := e.Check(ctx, tenantID, subject, relation, object, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			allowed = append(allowed, id)
		}
	}

	return allowed, nil
}

// Write atomically applies deltas within tenantID and invalidates the
// caches for every touched object and subject (spec §4.C "Consistency").
func (e *Evaluator) Write(ctx context.Context, tenantID string, deltas []TupleDelta) (Zookie, error) {
	zookie, err := e.store.Write(ctx, tenantID, deltas)
	if err != nil {
		return "", err
	}

	for _, d := range deltas {
		if e.decisionCache != nil {
			e.decisionCache.InvalidateObject(ctx, tenantID, d.Tuple.Object)
			e.decisionCache.InvalidateSubject(ctx, tenantID, d.Tuple.Subject)
		}
		if e.expansionCache != nil {
			e.expansionCache.InvalidateObject(ctx, tenantID, d.Tuple.Object)
		}
	}

	return zookie, nil
}

// minVersionFor decodes a presented zookie into the monotonic floor the
// store's reads must observe (spec §4.C "read_at"). A zookie minted under
// a different tenant is rejected — presenting another tenant's token can
// never widen what this tenant's reads observe.
func (e *Evaluator) minVersionFor(tenantID string, z Zookie) (zookieVersion, error) {
	if z == "" {
		return 0, nil
	}

	zTenant, v, err := decodeZookie(z)
	if err != nil {
		return 0, err
	}

	if zTenant != tenantID {
		return 0, rcerrors.Authorization("authz.zookie_tenant_mismatch", "zookie was not minted for this tenant")
	}

	return v, nil
}
