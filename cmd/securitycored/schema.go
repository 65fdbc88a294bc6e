package main

import "github.com/rustcare/core/internal/authz"

// defaultSchema declares the namespace the S1/S3 end-to-end scenarios
// exercise: a patient_record is viewable by a direct viewer tuple, by a
// treating_provider tuple, or by membership in a ward the record belongs
// to. It is compile-time data (spec §3 "one schema per deployment"), not
// loaded from configuration.
func defaultSchema() *authz.Schema {
	return authz.NewSchema(
		authz.NamespaceDef{
			Type: "ward",
			Relations: map[string]authz.RelationDef{
				"member": {Name: "member", Rewrite: authz.This{}},
			},
		},
		authz.NamespaceDef{
			Type: "patient_record",
			Relations: map[string]authz.RelationDef{
				"viewer": {
					Name: "viewer",
					Rewrite: authz.Union{Children: []authz.RewriteNode{
						authz.This{},
						authz.ComputedUserset{Relation: "treating_provider"},
						authz.TupleToUserset{
							TuplesetRelation: "belongs_to",
							ComputedRelation: "member",
						},
					}},
				},
				"treating_provider": {Name: "treating_provider", Rewrite: authz.This{}},
				"belongs_to":        {Name: "belongs_to", Rewrite: authz.This{}},
			},
		},
		authz.NamespaceDef{
			Type: "study",
			Relations: map[string]authz.RelationDef{
				"viewer": {Name: "viewer", Rewrite: authz.This{}},
			},
		},
	)
}
