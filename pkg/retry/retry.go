// Package retry provides a jittered exponential backoff policy for
// transient failures (base 50ms, cap 2s, max 3 attempts). No other package
// in this module calls it: the KMS providers and the tuple store do not
// retry failed calls.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	baseInterval = 50 * time.Millisecond
	maxInterval  = 2 * time.Second
	maxAttempts  = 3
)

// Policy builds the standard backoff policy for transient KMS and
// tuple-store failures. Do binds it to a context and caps the attempts
// with its own counter.
func Policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseInterval
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.5

	return b
}

// Retryable classifies an error as worth retrying. Operations call this to
// decide whether to keep retrying or give up immediately.
type Retryable interface {
	Retryable() bool
}

// Do runs op, retrying on any error except one that implements Retryable
// and reports false (errors that do not implement Retryable are retried),
// up to three attempts total with jittered exponential backoff. A
// non-retryable error, or the third failed attempt, is returned as-is.
func Do(ctx context.Context, op func() error) error {
	attempts := 0

	wrapped := func() error {
		attempts++

		err := op()
		if err == nil {
			return nil
		}

		if r, ok := err.(Retryable); ok && !r.Retryable() {
			return backoff.Permanent(err)
		}

		if attempts >= maxAttempts {
			return backoff.Permanent(err)
		}

		return err
	}

	b := backoff.WithContext(Policy(), ctx)

	return backoff.Retry(wrapped, b)
}
