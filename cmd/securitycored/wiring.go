package main

import (
	"github.com/rustcare/core/internal/kms"
)

// kmsSaltSource adapts the small-field KeyRing into masking.SaltSource:
// a Hashed pattern's SaltRef is derived the same way a small encrypted
// field's per-(tenant,field) key is, reusing the ring's HKDF expansion
// under a reserved pseudo-tenant/field-path pair rather than introducing
// a second secret-derivation path.
type kmsSaltSource struct {
	ring *kms.KeyRing
}

const saltDerivationTenant = "__masking_salts__"

func (s kmsSaltSource) Resolve(saltRef string) ([]byte, error) {
	return s.ring.FieldKey(s.ring.ActiveVersion(), saltDerivationTenant, saltRef)
}
