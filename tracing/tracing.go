// Package tracing sets up OpenTelemetry tracing for the supervisor.
// Without an output, tracing is a no-op.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const ServiceName = "procpool"

// Stdout selects standard output as trace output.
const Stdout = "stdout"

type Config struct {
	// Output is where spans are written. It is either empty (tracing
	// disabled), "stdout" or a file path.
	Output string `conf:"output"`
}

// Provider owns the tracer provider and its output.
type Provider struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// New creates a provider writing spans as JSON to the configured output.
func New(config Config, version string) (*Provider, error) {
	if config.Output == "" {
		return &Provider{
			tracer:   noop.NewTracerProvider().Tracer(ServiceName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)

	if config.Output != Stdout {
		f, err := os.Create(config.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace output: %w", err)
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	p := NewWithExporter(exporter, version)

	shutdown := p.shutdown
	p.shutdown = func(ctx context.Context) error {
		err := shutdown(ctx)
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return err
	}

	return p, nil
}

// NewWithExporter creates a provider exporting spans synchronously to exporter.
func NewWithExporter(exporter sdktrace.SpanExporter, version string) *Provider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		)),
	)

	return &Provider{
		tracer:   tp.Tracer(ServiceName),
		shutdown: tp.Shutdown,
	}
}

func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and closes the output.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// Noop returns a tracer that records nothing.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer(ServiceName)
}

// SetError records err on span, or an ok status if err is nil.
func SetError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.SetStatus(codes.Ok, "")
}
