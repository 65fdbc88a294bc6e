// Package kms implements envelope encryption with a pluggable KeyProvider
// (spec §4.B): LocalMasterKey for development, ExternalKMS (AWS KMS-like),
// and TransitSecretEngine (Vault Transit-like). The envelope strategy,
// rotation dispatch, DEK cache, and wire formats live here; the AEAD and
// KDF primitives themselves live in internal/crypto.
package kms

import "context"

// EncryptionContext binds non-secret context into the AEAD associated
// data, making a ciphertext non-portable across contexts (spec §4.B).
type EncryptionContext map[string]string

// KeySpec names the data-key algorithm/size to generate. Only AES256 is
// currently supported by this module's envelope format.
type KeySpec string

const KeySpecAES256 KeySpec = "AES_256"

// KeyProvider is the four-operation capability set every provider variant
// implements identically; the core never branches on provider identity
// except at construction (spec §4.B).
type KeyProvider interface {
	// Encrypt encrypts plaintext directly under the provider's active key,
	// binding ectx into the AEAD associated data.
	Encrypt(ctx context.Context, plaintext []byte, ectx EncryptionContext) (ciphertext []byte, err error)

	// Decrypt reverses Encrypt. A GCM tag mismatch surfaces as an
	// Integrity-class error, never a generic decryption error.
	Decrypt(ctx context.Context, ciphertext []byte, ectx EncryptionContext) (plaintext []byte, err error)

	// GenerateDataKey produces a fresh plaintext DEK and its wrapped form
	// (wrapped under the provider's master key, bound to ectx).
	GenerateDataKey(ctx context.Context, spec KeySpec, ectx EncryptionContext) (plaintextDEK, wrappedDEK []byte, err error)

	// Rewrap re-wraps wrappedDEK from one master-key version to another
	// without ever exposing the plaintext DEK to the caller.
	Rewrap(ctx context.Context, wrappedDEK []byte, fromVersion, toVersion uint16) (newWrappedDEK []byte, err error)
}

// KeyVersion identifies which master key a ciphertext or wrapped DEK was
// produced under. Decryption dispatches on this; rotation never performs
// a global online re-key (spec §4.B).
type KeyVersion uint16
