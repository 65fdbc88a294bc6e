package authz

import rcerrors "github.com/rustcare/core/pkg/errors"

// RewriteNode is one node of a relation's rewrite expression (spec §3/§4.C):
// a combination of direct tuples (This), same-object relation references
// (ComputedUserset), and tupleset traversals (TupleToUserset), combined by
// Union/Intersection/Difference.
type RewriteNode interface {
	isRewriteNode()
}

// This resolves to every subject holding a direct tuple on the relation
// being evaluated.
type This struct{}

func (This) isRewriteNode() {}

// ComputedUserset follows (this object → Relation) locally: the subject
// must satisfy a different relation on the same object.
type ComputedUserset struct {
	Relation string
}

func (ComputedUserset) isRewriteNode() {}

// TupleToUserset resolves, for every tuple (x, TuplesetRelation, object),
// check(subject, ComputedRelation, x). This is how "ward member" grants
// "patient belongs_to ward" viewers, for example.
type TupleToUserset struct {
	TuplesetRelation string
	ComputedRelation string
}

func (TupleToUserset) isRewriteNode() {}

// Union is satisfied if any child is satisfied.
type Union struct {
	Children []RewriteNode
}

func (Union) isRewriteNode() {}

// Intersection is satisfied only if every child is satisfied.
type Intersection struct {
	Children []RewriteNode
}

func (Intersection) isRewriteNode() {}

// Difference is satisfied if Base is satisfied and Subtract is not.
type Difference struct {
	Base     RewriteNode
	Subtract RewriteNode
}

func (Difference) isRewriteNode() {}

// RelationDef names one relation of an object type and its rewrite rule.
type RelationDef struct {
	Name    string
	Rewrite RewriteNode
}

// NamespaceDef declares the valid relations for one object type. The
// namespace schema is compile-time data for the evaluator — one schema per
// deployment, never stored per tenant (spec §3).
type NamespaceDef struct {
	Type      string
	Relations map[string]RelationDef
}

// Schema is the full set of namespace definitions the evaluator expands
// rewrite rules against.
type Schema struct {
	namespaces map[string]NamespaceDef
}

// NewSchema builds a Schema from namespace definitions.
func NewSchema(namespaces ...NamespaceDef) *Schema {
	m := make(map[string]NamespaceDef, len(namespaces))
	for _, ns := range namespaces {
		m[ns.Type] = ns
	}

	return &Schema{namespaces: m}
}

// Relation looks up the rewrite rule for (objectType, relation).
func (s *Schema) Relation(objectType, relation string) (RelationDef, error) {
	ns, ok := s.namespaces[objectType]
	if !ok {
		return RelationDef{}, rcerrors.Validation("authz.unknown_object_type", nil, "no namespace declared for object type %q", objectType)
	}

	rel, ok := ns.Relations[relation]
	if !ok {
		return RelationDef{}, rcerrors.Validation("authz.unknown_relation", nil, "object type %q declares no relation %q", objectType, relation)
	}

	return rel, nil
}
