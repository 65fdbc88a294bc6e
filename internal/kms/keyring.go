package kms

import (
	"github.com/rustcare/core/internal/crypto"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

// KeyRing holds the versioned tenant/field master keys used to encrypt
// small fields directly (spec §4.B: payloads below the configured
// threshold are encrypted directly with a versioned master key, not via
// an envelope DEK). Each version's root key derives a distinct per-field
// key via HKDF so that compromise of one field's key does not expose
// another's.
type KeyRing struct {
	roots  map[KeyVersion][]byte
	active KeyVersion
}

// NewKeyRing builds a ring from a set of versioned root keys (32 bytes
// each) and the version new encryptions should use.
func NewKeyRing(roots map[KeyVersion][]byte, active KeyVersion) (*KeyRing, error) {
	root, ok := roots[active]
	if !ok || len(root) != crypto.KeySize {
		return nil, rcerrors.Internal("kms.keyring_active_version", nil)
	}

	return &KeyRing{roots: roots, active: active}, nil
}

// ActiveVersion is the version new small-field encryptions are written under.
func (r *KeyRing) ActiveVersion() KeyVersion {
	return r.active
}

// FieldKey derives the per-(tenant,field) key for version v. Returns
// no-such-version if v has been fully retired (removed from roots).
func (r *KeyRing) FieldKey(v KeyVersion, tenantID, fieldPath string) ([]byte, error) {
	root, ok := r.roots[v]
	if !ok {
		return nil, rcerrors.Integrity("kms.no_such_version", "key version %d is not available", v)
	}

	info := []byte(tenantID + ":" + fieldPath)

	return crypto.DeriveSubkey(root, []byte("rustcare-field-key"), info, crypto.KeySize)
}
