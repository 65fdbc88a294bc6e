package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// Argon2Params bounds the Argon2id cost parameters. Defaults follow the
// OWASP-recommended floor for interactive password hashing.
type Argon2Params struct {
	TimeCost   uint32
	MemoryKiB  uint32
	Threads    uint8
	SaltSize   int
	KeyLen     uint32
}

// DefaultArgon2Params returns a conservative, interactive-login cost profile.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		TimeCost:  3,
		MemoryKiB: 64 * 1024,
		Threads:   4,
		SaltSize:  16,
		KeyLen:    32,
	}
}

// HashPassword derives an Argon2id hash of password under a fresh random
// salt and returns salt‖hash for storage.
func HashPassword(password []byte, params Argon2Params) (saltAndHash []byte, err error) {
	salt := make([]byte, params.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, rcerrors.Internal("crypto.salt", err)
	}

	hash := argon2.IDKey(password, salt, params.TimeCost, params.MemoryKiB, params.Threads, params.KeyLen)

	out := make([]byte, 0, len(salt)+len(hash))
	out = append(out, salt...)
	out = append(out, hash...)

	return out, nil
}

// VerifyPassword recomputes the Argon2id hash of password with the salt
// embedded in saltAndHash and compares it in constant time. Comparison
// never short-circuits on a length mismatch (ConstantTimeEqual).
func VerifyPassword(password, saltAndHash []byte, params Argon2Params) bool {
	if len(saltAndHash) < params.SaltSize {
		return false
	}

	salt := saltAndHash[:params.SaltSize]
	want := saltAndHash[params.SaltSize:]

	got := argon2.IDKey(password, salt, params.TimeCost, params.MemoryKiB, params.Threads, params.KeyLen)

	return ConstantTimeEqual(got, want)
}

// DeriveSubkey derives a length-byte subkey from secret using HKDF-SHA256,
// bound to salt and info. Used to derive tenant/field-scoped master keys
// and DEK-cache lookup fingerprints from a root secret.
func DeriveSubkey(secret, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, info)

	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, rcerrors.Internal("crypto.hkdf", err)
	}

	return out, nil
}

// FingerprintWrappedDEK returns SHA-256(wrappedDEK), the DEK cache's lookup
// key (spec §4.B): the cache never keys on plaintext key material.
func FingerprintWrappedDEK(wrappedDEK []byte) [32]byte {
	return sha256.Sum256(wrappedDEK)
}
