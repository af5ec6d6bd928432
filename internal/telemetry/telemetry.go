// Package telemetry wires OpenTelemetry tracing for the populate and scan
// paths. The stdout exporter is intended for local inspection; a host
// embedding the core can install its own provider instead.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Intellirim/inalign"

// Tracer returns the tracer used by inalign's instrumented paths.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Setup installs a stdout-exporting tracer provider and returns a shutdown
// function. Spans are written to w as line-delimited JSON.
func Setup(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
