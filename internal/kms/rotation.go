package kms

import (
	"context"
	"encoding/binary"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// Rotator dispatches and performs key rotation for a KeyRing (spec §4.B):
// rotation introduces a new active version without invalidating ciphertext
// already written under older versions, and re-encryption of existing data
// happens lazily or via a bounded background sweep, never as a blocking
// global re-key.
type Rotator struct {
	ring  *KeyRing
	cache *DEKCache
}

// NewRotator builds a Rotator over ring, invalidating cached DEKs as
// versions retire.
func NewRotator(ring *KeyRing, cache *DEKCache) *Rotator {
	return &Rotator{ring: ring, cache: cache}
}

// RotateFieldValue re-encrypts a single small-field envelope from whatever
// version it was written under to the ring's current active version. It is
// the unit of work a background rotation sweep drives across stored rows;
// callers also invoke it lazily on read-then-write of a stale-versioned
// field.
func (r *Rotator) RotateFieldValue(env *Envelope, tenantID, fieldPath string, encoded string, ectx EncryptionContext) (string, error) {
	plaintext, err := env.DecryptField(tenantID, fieldPath, encoded, ectx)
	if err != nil {
		return "", err
	}
	defer zeroizeCopy(plaintext)

	return env.EncryptField(tenantID, fieldPath, plaintext, ectx)
}

// RotateObject re-wraps a large-object frame's DEK to the ring's current
// active version without re-encrypting the (potentially large) ciphertext
// body, per spec §4.B's "rewrap, don't re-seal" rotation path.
func (r *Rotator) RotateObject(ctx context.Context, provider KeyProvider, frame []byte) ([]byte, error) {
	if len(frame) < rceHeaderMin || string(frame[:rceMagicLen]) != rceMagic {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "large-object frame has a bad magic header")
	}

	oldVersion := binary.BigEndian.Uint16(frame[rceMagicLen : rceMagicLen+2])
	off := rceMagicLen + 2 // skip magic, old version
	wrappedLen := int(binary.BigEndian.Uint16(frame[off : off+2]))
	off += 2

	wrappedDEK := frame[off : off+wrappedLen]
	rest := frame[off+wrappedLen:]

	newWrapped, err := provider.Rewrap(ctx, wrappedDEK, oldVersion, uint16(r.ring.ActiveVersion()))
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Invalidate(wrappedDEK)
	}

	out := make([]byte, 0, rceHeaderMin+len(newWrapped)+len(rest))
	out = append(out, frame[:rceMagicLen]...)
	out = binary.BigEndian.AppendUint16(out, uint16(r.ring.ActiveVersion()))
	out = binary.BigEndian.AppendUint16(out, uint16(len(newWrapped)))
	out = append(out, newWrapped...)
	out = append(out, rest...)

	return out, nil
}

func zeroizeCopy(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
