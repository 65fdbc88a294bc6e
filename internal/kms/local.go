package kms

import (
	"context"
	"crypto/rand"

	"github.com/rustcare/core/internal/crypto"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

// LocalMasterKey is the development/test KeyProvider variant: a single
// 256-bit key taken straight from configuration (spec §4.B). It implements
// the same four operations as the remote providers with identical
// semantics so callers never branch on provider identity.
type LocalMasterKey struct {
	key     []byte
	version KeyVersion
}

// NewLocalMasterKey builds a LocalMasterKey provider from a 32-byte key.
func NewLocalMasterKey(key []byte, version KeyVersion) (*LocalMasterKey, error) {
	if len(key) != crypto.KeySize {
		return nil, rcerrors.Internal("kms.local_key_size", nil)
	}

	return &LocalMasterKey{key: key, version: version}, nil
}

func (p *LocalMasterKey) Encrypt(_ context.Context, plaintext []byte, ectx EncryptionContext) ([]byte, error) {
	return crypto.Seal(p.key, plaintext, canonicalAAD(ectx))
}

func (p *LocalMasterKey) Decrypt(_ context.Context, ciphertext []byte, ectx EncryptionContext) ([]byte, error) {
	return crypto.Open(p.key, ciphertext, canonicalAAD(ectx))
}

func (p *LocalMasterKey) GenerateDataKey(_ context.Context, spec KeySpec, ectx EncryptionContext) ([]byte, []byte, error) {
	if spec != KeySpecAES256 {
		return nil, nil, rcerrors.Internal("kms.unsupported_key_spec", nil)
	}

	dek := make([]byte, crypto.KeySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, rcerrors.Internal("kms.dek_random", err)
	}

	wrapped, err := crypto.Seal(p.key, dek, canonicalAAD(ectx))
	if err != nil {
		crypto.ZeroBytes(dek)
		return nil, nil, err
	}

	return dek, wrapped, nil
}

func (p *LocalMasterKey) Rewrap(ctx context.Context, wrappedDEK []byte, fromVersion, toVersion uint16) ([]byte, error) {
	// LocalMasterKey has exactly one version; rewrap within the same
	// version is a no-op validity check, cross-version is unsupported.
	if fromVersion != uint16(p.version) || toVersion != uint16(p.version) {
		return nil, rcerrors.Integrity("kms.no_such_version", "local master key only serves version %d", p.version)
	}

	return wrappedDEK, nil
}
