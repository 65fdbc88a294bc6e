package masking

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"hash"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

const fillChar = '█' // U+2588, spec §4.D "Numeric semantics of Partial"

const redactedToken = "[REDACTED]"

// SaltSource resolves a policy's SaltRef to the secret bytes used by the
// Hashed pattern. Production wiring is backed by internal/kms (salts are
// HKDF-derived from the small-field KeyRing's active version); tests use a
// static map.
type SaltSource interface {
	Resolve(saltRef string) ([]byte, error)
}

// Tokenizer exchanges a plaintext value for an opaque, scheme-specific
// token (spec §4.D Tokenized). Production wiring would consult a
// format-preserving tokenization vault; this package ships a deterministic
// HMAC-based implementation suitable for a single-process deployment.
type Tokenizer interface {
	Tokenize(scheme, value string) (string, error)
}

// HMACTokenizer implements Tokenizer by HMAC-ing the value under a
// per-scheme key and base32-encoding a truncated digest, so the same
// input always yields the same token (stable for joins/dedup in
// downstream exports without exposing the plaintext).
type HMACTokenizer struct {
	Keys map[string][]byte
}

func (h HMACTokenizer) Tokenize(scheme, value string) (string, error) {
	key, ok := h.Keys[scheme]
	if !ok {
		return "", rcerrors.Internal("masking.unknown_tokenize_scheme", nil)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	sum := mac.Sum(nil)

	return scheme + "_" + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:12]), nil
}

// Apply renders value under pattern. It is pure for None/Partial/Full/
// Redacted (output length is a function of input length and pattern
// only); Hashed and Tokenized produce a new, unrelated-length value.
func Apply(pattern MaskPattern, value string, salts SaltSource, tokenizer Tokenizer) (string, error) {
	switch pattern.Kind {
	case KindNone:
		return value, nil

	case KindFull:
		return fillString(len([]rune(value))), nil

	case KindRedacted:
		return redactedToken, nil

	case KindPartial:
		return applyPartial(pattern.ShowFirst, pattern.ShowLast, value), nil

	case KindHashed:
		return applyHashed(pattern.Algo, pattern.SaltRef, value, salts)

	case KindTokenized:
		if tokenizer == nil {
			return "", rcerrors.Internal("masking.no_tokenizer_configured", nil)
		}

		return tokenizer.Tokenize(pattern.Scheme, value)

	default:
		return "", rcerrors.Internal("masking.unknown_pattern_kind", nil)
	}
}

func fillString(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = fillChar
	}

	return string(runes)
}

// applyPartial implements spec §4.D's exact semantics: show the first f
// and last l runes of a string of length n >= f+l, filling the middle;
// when n < f+l, show only min(f, n) leading runes and fill the rest.
// First and last never overlap.
func applyPartial(f, l int, value string) string {
	runes := []rune(value)
	n := len(runes)

	if f < 0 {
		f = 0
	}
	if l < 0 {
		l = 0
	}

	if n >= f+l {
		out := make([]rune, 0, n)
		out = append(out, runes[:f]...)
		for i := 0; i < n-f-l; i++ {
			out = append(out, fillChar)
		}
		out = append(out, runes[n-l:]...)

		return string(out)
	}

	shown := f
	if shown > n {
		shown = n
	}

	out := make([]rune, 0, n)
	out = append(out, runes[:shown]...)
	for i := 0; i < n-shown; i++ {
		out = append(out, fillChar)
	}

	return string(out)
}

func applyHashed(algo, saltRef, value string, salts SaltSource) (string, error) {
	if salts == nil {
		return "", rcerrors.Internal("masking.no_salt_source_configured", nil)
	}

	salt, err := salts.Resolve(saltRef)
	if err != nil {
		return "", rcerrors.Internal("masking.salt_resolve_failed", err)
	}

	var h hash.Hash

	switch algo {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return "", rcerrors.Internal("masking.unknown_hash_algo", fmt.Errorf("algo %q", algo))
	}

	h.Write(salt)
	h.Write([]byte(value))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// StaticSaltSource is a SaltSource backed by a fixed in-process map, used
// in tests and for deployments that resolve salts from local config
// rather than internal/kms.
type StaticSaltSource map[string][]byte

func (s StaticSaltSource) Resolve(saltRef string) ([]byte, error) {
	salt, ok := s[saltRef]
	if !ok {
		return nil, rcerrors.Internal("masking.unknown_salt_ref", nil)
	}

	return salt, nil
}
