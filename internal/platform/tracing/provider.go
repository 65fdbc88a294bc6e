package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewProvider builds and globally registers a TracerProvider for
// serviceName, grounded on the teacher's Telemetry.newResource/
// newTracerProvider split (common/mopentelemetry/otel.go), minus its
// OTLP exporter wiring (no collector endpoint is part of this module's
// configuration surface yet — see DESIGN.md's Open Question notes).
// No SpanProcessor is registered, so spans recorded against the returned
// provider are not exported or retained anywhere; wiring a real
// exporter (otlptrace, stdouttrace, ...) only requires adding one
// sdktrace.WithSpanProcessor option here.
func NewProvider(serviceName string) (*sdktrace.TracerProvider, error) {
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp, nil
}

// Shutdown flushes and stops provider, logging nothing itself — callers
// decide how to report a shutdown error.
func Shutdown(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}

	return provider.Shutdown(ctx)
}
