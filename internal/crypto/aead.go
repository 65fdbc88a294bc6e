package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

const (
	// NonceSize is the AES-GCM nonce size spec §4.A commits to: 96 bits.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag size: 128 bits.
	TagSize = 16
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32
)

// Seal encrypts plaintext under key (must be 32 bytes) with AES-256-GCM,
// binding aad as additional authenticated data, and returns nonce‖ciphertext‖tag
// with a freshly generated random nonce prepended. aad makes a ciphertext
// non-portable across contexts (spec §4.B).
func Seal(key, plaintext, aad []byte) (nonceAndCiphertext []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, rcerrors.Internal("crypto.nonce", err)
	}

	ct := aead.Seal(nil, nonce, plaintext, aad)

	out := make([]byte, 0, len(nonce)+len(ct))
	out = append(out, nonce...)
	out = append(out, ct...)

	return out, nil
}

// Open reverses Seal. A tag mismatch or truncated input is surfaced as an
// Integrity-class error (spec §7), never as a generic decryption error.
func Open(key, nonceAndCiphertext, aad []byte) ([]byte, error) {
	if len(nonceAndCiphertext) < NonceSize+TagSize {
		return nil, rcerrors.Integrity("crypto.truncated", "ciphertext shorter than nonce+tag")
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := nonceAndCiphertext[:NonceSize]
	ct := nonceAndCiphertext[NonceSize:]

	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, rcerrors.Integrity("crypto.tag_mismatch", "AEAD authentication failed")
	}

	return pt, nil
}

// SealWithNonce is like Seal but accepts a caller-supplied nonce, and
// returns ciphertext‖tag only (the nonce is not prepended). Used only
// where the nonce is externally fixed (e.g. deterministic test vectors);
// production call sites must use Seal, which always generates a fresh
// random nonce per call.
func SealWithNonce(key, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, rcerrors.Internal("crypto.nonce_size", nil)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenWithNonce reverses SealWithNonce given an explicit nonce and ciphertext‖tag.
func OpenWithNonce(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, rcerrors.Integrity("crypto.nonce_size", "nonce must be %d bytes", NonceSize)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, rcerrors.Integrity("crypto.tag_mismatch", "AEAD authentication failed")
	}

	return pt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, rcerrors.Internal("crypto.invalid_key_size", nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, rcerrors.Internal("crypto.invalid_key_size", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, rcerrors.Internal("crypto.gcm_init", err)
	}

	return aead, nil
}
