// Package tracing sets up the runtime's ambient OpenTelemetry tracer
// provider and offers a small StartSpan helper (currently unused; the
// provider client and call router start spans through otel directly): a
// resource-tagged SDK
// TracerProvider with no external exporter wired (spans are recorded but
// not shipped anywhere — exporter wiring is an out-of-scope concern of
// the telemetry sink), installed as the process tracer via
// otel.SetTracerProvider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Init installs a process-wide TracerProvider tagged with serviceName and
// returns a Tracer for the runtime's spans (Call Router dispatch, provider
// RPCs). Safe to call once at process startup.
func Init(serviceName string) trace.Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return otel.Tracer(serviceName)
}

// StartSpan is a thin convenience wrapper so call sites don't need to carry
// a *trace.Tracer field just to add one attribute-bearing span.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, attrs...)
}
