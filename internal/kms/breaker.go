package kms

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rustcare/core/internal/platform/tracing"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

// dataKeyResult bundles GenerateDataKey's two return values so a single
// gobreaker.CircuitBreaker[T] instance can wrap it.
type dataKeyResult struct {
	plaintextDEK []byte
	wrappedDEK   []byte
}

// BreakingProvider wraps a remote KeyProvider (ExternalKMS,
// TransitSecretEngine) with a circuit breaker per spec §4.B/§7: after
// repeated KMS failures, the breaker opens and calls fail fast as
// KmsUnavailable instead of piling up latency against a down dependency.
type BreakingProvider struct {
	inner KeyProvider

	bytesBreaker   *gobreaker.CircuitBreaker[[]byte]
	dataKeyBreaker *gobreaker.CircuitBreaker[dataKeyResult]
}

// BreakerSettings configures the trip/reset behavior. Zero value yields
// reasonable defaults (5 consecutive failures trips, 30s open timeout).
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	ClosedWindow        time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.ClosedWindow == 0 {
		s.ClosedWindow = 60 * time.Second
	}

	return s
}

// NewBreakingProvider wraps inner with a circuit breaker.
func NewBreakingProvider(inner KeyProvider, settings BreakerSettings) *BreakingProvider {
	settings = settings.withDefaults()

	readyToTrip := func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
	}

	return &BreakingProvider{
		inner: inner,
		bytesBreaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        settings.Name + ".bytes",
			Interval:    settings.ClosedWindow,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: readyToTrip,
		}),
		dataKeyBreaker: gobreaker.NewCircuitBreaker[dataKeyResult](gobreaker.Settings{
			Name:        settings.Name + ".datakey",
			Interval:    settings.ClosedWindow,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: readyToTrip,
		}),
	}
}

func (p *BreakingProvider) Encrypt(ctx context.Context, plaintext []byte, ectx EncryptionContext) (out []byte, err error) {
	ctx, span := tracing.Start(ctx, "kms.BreakingProvider.Encrypt")
	defer func() { tracing.HandleSpanError(span, "kms encrypt failed", err); span.End() }()

	return tripToKmsUnavailable(p.bytesBreaker.Execute(func() ([]byte, error) {
		return p.inner.Encrypt(ctx, plaintext, ectx)
	}))
}

func (p *BreakingProvider) Decrypt(ctx context.Context, ciphertext []byte, ectx EncryptionContext) (out []byte, err error) {
	ctx, span := tracing.Start(ctx, "kms.BreakingProvider.Decrypt")
	defer func() { tracing.HandleSpanError(span, "kms decrypt failed", err); span.End() }()

	return tripToKmsUnavailable(p.bytesBreaker.Execute(func() ([]byte, error) {
		return p.inner.Decrypt(ctx, ciphertext, ectx)
	}))
}

func (p *BreakingProvider) GenerateDataKey(ctx context.Context, spec KeySpec, ectx EncryptionContext) (dek, wrapped []byte, err error) {
	ctx, span := tracing.Start(ctx, "kms.BreakingProvider.GenerateDataKey")
	defer func() { tracing.HandleSpanError(span, "kms generate data key failed", err); span.End() }()

	res, err := p.dataKeyBreaker.Execute(func() (dataKeyResult, error) {
		dek, wrapped, err := p.inner.GenerateDataKey(ctx, spec, ectx)
		return dataKeyResult{plaintextDEK: dek, wrappedDEK: wrapped}, err
	})
	if err != nil {
		return nil, nil, mapBreakerErr(err)
	}

	return res.plaintextDEK, res.wrappedDEK, nil
}

func (p *BreakingProvider) Rewrap(ctx context.Context, wrappedDEK []byte, fromVersion, toVersion uint16) (out []byte, err error) {
	ctx, span := tracing.Start(ctx, "kms.BreakingProvider.Rewrap")
	defer func() { tracing.HandleSpanError(span, "kms rewrap failed", err); span.End() }()

	return tripToKmsUnavailable(p.bytesBreaker.Execute(func() ([]byte, error) {
		return p.inner.Rewrap(ctx, wrappedDEK, fromVersion, toVersion)
	}))
}

func tripToKmsUnavailable(v []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, mapBreakerErr(err)
	}

	return v, nil
}

// mapBreakerErr surfaces gobreaker's own open-circuit error as the same
// KmsUnavailable kind a failed underlying call would have produced, so
// callers never branch on breaker-vs-provider failure.
func mapBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return rcerrors.KmsUnavailable("kms.circuit_open", "kms circuit breaker is open: %v", err)
	}

	return err
}
