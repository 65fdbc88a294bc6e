package kms

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rustcare/core/internal/crypto"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

const (
	rceMagic      = "RCE1"
	rceMagicLen   = 4
	rceHeaderMin  = rceMagicLen + 2 + 2 // magic + version + wrapped_dek_len
)

// Envelope implements the envelope-encryption strategy of spec §4.B: below
// ThresholdBytes, encrypt directly with the versioned field key ring;
// at or above it, generate a fresh DEK via provider and prepend the wrapped
// DEK to the ciphertext frame.
type Envelope struct {
	Ring          *KeyRing
	Provider      KeyProvider
	ThresholdBytes int
}

// canonicalAAD turns an EncryptionContext into deterministic bytes bound
// into the AEAD associated data, so a ciphertext is non-portable across
// contexts (spec §4.B).
func canonicalAAD(ectx EncryptionContext) []byte {
	keys := make([]string, 0, len(ectx))
	for k := range ectx {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ectx[k])
		b.WriteByte(';')
	}

	return []byte(b.String())
}

// EncryptField encrypts a value smaller than ThresholdBytes using the
// small-field wire format v{version}:{nonce_b64}:{ct_b64} (spec §6,
// bit-exact). tenantID and fieldPath scope the derived key.
func (e *Envelope) EncryptField(tenantID, fieldPath string, plaintext []byte, ectx EncryptionContext) (string, error) {
	version := e.Ring.ActiveVersion()

	key, err := e.Ring.FieldKey(version, tenantID, fieldPath)
	if err != nil {
		return "", err
	}

	nonceAndCT, err := crypto.Seal(key, plaintext, canonicalAAD(ectx))
	if err != nil {
		return "", err
	}

	nonce := nonceAndCT[:crypto.NonceSize]
	ct := nonceAndCT[crypto.NonceSize:]

	return fmt.Sprintf("v%d:%s:%s", version, base64.StdEncoding.EncodeToString(nonce), base64.StdEncoding.EncodeToString(ct)), nil
}

// DecryptField reverses EncryptField, dispatching on the embedded version.
func (e *Envelope) DecryptField(tenantID, fieldPath, encoded string, ectx EncryptionContext) ([]byte, error) {
	parts := strings.SplitN(encoded, ":", 3)
	if len(parts) != 3 || len(parts[0]) < 2 || parts[0][0] != 'v' {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "small-field envelope is malformed")
	}

	versionNum, err := strconv.ParseUint(parts[0][1:], 10, 16)
	if err != nil {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "small-field envelope has a non-numeric version")
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "small-field envelope has invalid nonce encoding")
	}

	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "small-field envelope has invalid ciphertext encoding")
	}

	key, err := e.Ring.FieldKey(KeyVersion(versionNum), tenantID, fieldPath)
	if err != nil {
		return nil, err
	}

	return crypto.OpenWithNonce(key, nonce, ct, canonicalAAD(ectx))
}

// EncryptObject encrypts a payload at or above ThresholdBytes using a fresh
// per-object DEK wrapped by the provider's master key, in the RCE1 binary
// frame (spec §6, bit-exact):
// magic(4) ‖ version(u16 BE) ‖ wrapped_dek_len(u16 BE) ‖ wrapped_dek ‖ nonce(12) ‖ ciphertext‖tag.
func (e *Envelope) EncryptObject(ctx context.Context, plaintext []byte, ectx EncryptionContext) ([]byte, error) {
	dek, wrappedDEK, err := e.Provider.GenerateDataKey(ctx, KeySpecAES256, ectx)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(dek)

	nonceAndCT, err := crypto.Seal(dek, plaintext, canonicalAAD(ectx))
	if err != nil {
		return nil, err
	}

	if len(wrappedDEK) > 0xFFFF {
		return nil, rcerrors.Internal("kms.wrapped_dek_too_large", nil)
	}

	frame := make([]byte, 0, rceHeaderMin+len(wrappedDEK)+len(nonceAndCT))
	frame = append(frame, []byte(rceMagic)...)
	frame = binary.BigEndian.AppendUint16(frame, uint16(e.Ring.ActiveVersion()))
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(wrappedDEK)))
	frame = append(frame, wrappedDEK...)
	frame = append(frame, nonceAndCT...)

	return frame, nil
}

// DecryptObject reverses EncryptObject.
func (e *Envelope) DecryptObject(ctx context.Context, frame []byte, ectx EncryptionContext) ([]byte, error) {
	if len(frame) < rceHeaderMin || string(frame[:rceMagicLen]) != rceMagic {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "large-object frame has a bad magic header")
	}

	off := rceMagicLen
	_ = binary.BigEndian.Uint16(frame[off : off+2]) // version, informational only today
	off += 2

	wrappedLen := int(binary.BigEndian.Uint16(frame[off : off+2]))
	off += 2

	if len(frame) < off+wrappedLen+crypto.NonceSize+crypto.TagSize {
		return nil, rcerrors.Integrity("kms.malformed_envelope", "large-object frame is truncated")
	}

	wrappedDEK := frame[off : off+wrappedLen]
	off += wrappedLen

	nonceAndCT := frame[off:]

	dek, err := e.Provider.Decrypt(ctx, wrappedDEK, ectx)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(dek)

	return crypto.OpenWithNonce(dek, nonceAndCT[:crypto.NonceSize], nonceAndCT[crypto.NonceSize:], canonicalAAD(ectx))
}

// ShouldUseEnvelope decides the small-field vs large-object path by payload size.
func (e *Envelope) ShouldUseEnvelope(payloadLen int) bool {
	return payloadLen >= e.ThresholdBytes
}
