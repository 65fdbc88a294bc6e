package secctx

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sync/atomic"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// SigningKey is one entry of the signing-key store: a public key plus the
// JWT algorithm it verifies, addressed by key id (spec §4.E step 2 "keys
// fetched from the signing-key store with rotation").
type SigningKey struct {
	KeyID     string
	Algorithm string // "RS256" | "RS384" | "RS512" | "EdDSA"
	PublicKey crypto.PublicKey
}

// KeyStore resolves a key id to its verification key.
type KeyStore interface {
	Lookup(kid string) (SigningKey, error)
}

// StaticKeyStore is a copy-on-write, lock-free-read key store: Rotate
// swaps in a new immutable snapshot; concurrent Lookups never block on a
// rotation in progress (spec §5 "Signing-key store: copy-on-write
// snapshot updated by a background rotator; verifiers read the snapshot
// lock-free").
type StaticKeyStore struct {
	snapshot atomic.Pointer[map[string]SigningKey]
}

// NewStaticKeyStore builds a store seeded with the given keys.
func NewStaticKeyStore(keys []SigningKey) *StaticKeyStore {
	s := &StaticKeyStore{}
	s.Rotate(keys)

	return s
}

// Rotate atomically replaces the active key set. Keys retired from the
// snapshot stop verifying new tokens immediately; tokens already accepted
// are unaffected (verification is stateless per request).
func (s *StaticKeyStore) Rotate(keys []SigningKey) {
	m := make(map[string]SigningKey, len(keys))
	for _, k := range keys {
		m[k.KeyID] = k
	}

	s.snapshot.Store(&m)
}

func (s *StaticKeyStore) Lookup(kid string) (SigningKey, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return SigningKey{}, rcerrors.Authentication("secctx.no_keys_loaded", "signing-key store is empty")
	}

	key, ok := (*snap)[kid]
	if !ok {
		return SigningKey{}, rcerrors.Authentication("secctx.unknown_key_id", "no signing key for kid %q", kid)
	}

	return key, nil
}

// signingKeyEntry is the wire shape of one entry in the JWT_SIGNING_KEYS
// configuration value: an SPKI public key, PEM-encoded, plus the kid/alg
// the store indexes it by.
type signingKeyEntry struct {
	KeyID        string `json:"kid"`
	Algorithm    string `json:"algorithm"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// ParseSigningKeysJSON decodes the startup key set described above into
// SigningKeys, for seeding a StaticKeyStore. Each entry's PEM block must
// decode to an RSA or Ed25519 public key matching its declared algorithm.
func ParseSigningKeysJSON(raw []byte) ([]SigningKey, error) {
	var entries []signingKeyEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing JWT signing keys: %w", err)
	}

	keys := make([]SigningKey, 0, len(entries))
	for _, e := range entries {
		block, _ := pem.Decode([]byte(e.PublicKeyPEM))
		if block == nil {
			return nil, fmt.Errorf("signing key %q: no PEM block found", e.KeyID)
		}

		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("signing key %q: %w", e.KeyID, err)
		}

		switch pub.(type) {
		case *rsa.PublicKey, ed25519.PublicKey:
		default:
			return nil, fmt.Errorf("signing key %q: unsupported public key type %T", e.KeyID, pub)
		}

		keys = append(keys, SigningKey{KeyID: e.KeyID, Algorithm: e.Algorithm, PublicKey: pub})
	}

	return keys, nil
}
