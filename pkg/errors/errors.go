// Package errors defines the structured error taxonomy shared across every
// component of the security core. Components never panic across a boundary;
// they return one of these types, and the outermost response layer (see
// pkg/nethttp) widens it to an HTTP status.
package errors

import "fmt"

// Kind names one of the taxonomy's error classes.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
	KindIntegrity      Kind = "integrity"
	KindKmsUnavailable Kind = "kms_unavailable"
	KindInternal       Kind = "internal"
)

// Error is the common shape for every taxonomy member: a stable code, a
// kind dispatched on by pkg/nethttp, a human message, and an optional
// wrapped cause. Message must never contain secret material (tokens, DEKs,
// plaintext) — callers are responsible for keeping it free of such data.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return e.Message
}

// Unwrap implements error wrapping introduced in Go 1.13.
func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Authentication builds a 401-class error: missing, invalid, or expired
// credential. Never retried; the body carries no detail beyond the request id.
func Authentication(code, format string, args ...any) *Error {
	return newf(KindAuthentication, code, format, args...)
}

// Authorization builds a 403-class error for an explicit denial. Implicit
// denials (an empty allowed-resources set on read) are not errors at all —
// they surface as a well-formed empty collection, by design (spec §7).
func Authorization(code, format string, args ...any) *Error {
	return newf(KindAuthorization, code, format, args...)
}

// Validation builds a 400-class error for a shape/format violation on
// inbound data. Fields carries field-level reasons when available.
func Validation(code string, fields map[string]string, format string, args ...any) *Error {
	e := newf(KindValidation, code, format, args...)
	if len(fields) > 0 {
		e.Err = fieldError(fields)
	}

	return e
}

// Conflict builds a 409-class error: uniqueness or optimistic-lock collision.
func Conflict(code, format string, args ...any) *Error {
	return newf(KindConflict, code, format, args...)
}

// NotFound builds a 404-class error. Resource-absent and hidden-by-RLS are
// intentionally indistinguishable to avoid existence leaks.
func NotFound(code, format string, args ...any) *Error {
	return newf(KindNotFound, code, format, args...)
}

// RateLimited builds a 429-class error. RetryAfterSecs should be surfaced
// by the caller as the Retry-After header.
func RateLimited(code string, retryAfterSecs int) *Error {
	e := newf(KindRateLimited, code, "rate limit exceeded, retry after %ds", retryAfterSecs)
	e.Err = retryAfter(retryAfterSecs)

	return e
}

// RetryAfterSecs extracts the retry-after hint from a RateLimited error, if any.
func RetryAfterSecs(err error) (int, bool) {
	var ra retryAfter
	if e, ok := err.(*Error); ok {
		if v, ok := e.Err.(retryAfter); ok {
			ra = v
			return int(ra), true
		}
	}

	return 0, false
}

type retryAfter int

func (retryAfter) Error() string { return "retry-after" }

// Integrity builds a 500-class error reserved for AEAD tag mismatches and
// corrupt envelopes. Never conflated with a generic decryption error; always
// triggers a security-audit event at the caller.
func Integrity(code, format string, args ...any) *Error {
	return newf(KindIntegrity, code, format, args...)
}

// KmsUnavailable builds a 503-class error for a transient KMS failure after
// bounded retry. Background re-encryption pauses while this is in effect.
func KmsUnavailable(code, format string, args ...any) *Error {
	return newf(KindKmsUnavailable, code, format, args...)
}

// Internal builds a catch-all 500-class error. Message must never include
// secret material; wrap the underlying cause via err for logging only.
func Internal(code string, err error) *Error {
	e := newf(KindInternal, code, "internal error")
	e.Err = err

	return e
}

// FieldErrors returns the field-level validation reasons attached to err, if any.
func FieldErrors(err error) map[string]string {
	if e, ok := err.(*Error); ok {
		if fe, ok := e.Err.(fieldError); ok {
			return map[string]string(fe)
		}
	}

	return nil
}

type fieldError map[string]string

func (fieldError) Error() string { return "validation failed" }

// Is reports whether target is an *Error with the same Kind, satisfying
// errors.Is. Two *Error values with the same Kind but different codes are
// still considered a match at the kind granularity pkg/nethttp dispatches on.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}
