// Package tracing configures the OpenTelemetry tracer provider. Spans are
// written to an io.Writer (stdout by default) by the stdouttrace exporter.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by fwplan packages.
const TracerName = "grimm.is/fwplan"

// Provider wraps the SDK tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// Setup installs a global tracer provider for serviceName that exports to w.
// A nil w means stdout.
func Setup(serviceName string, w io.Writer) (*Provider, error) {
	opts := []stdouttrace.Option{}
	if w != nil {
		opts = append(opts, stdouttrace.WithWriter(w))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	return &Provider{provider: provider}, nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// Tracer returns the fwplan tracer from the global provider. Without Setup
// it is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
