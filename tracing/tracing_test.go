package tracing_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lambda-feedback/procpool/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	p, err := tracing.New(tracing.Config{}, "test")
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "worker")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_WritesSpansToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.json")

	p, err := tracing.New(tracing.Config{Output: path}, "test")
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "worker")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Name":"worker"`)
}

func TestSetError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p := tracing.NewWithExporter(exporter, "test")

	_, failed := p.Tracer().Start(context.Background(), "failed")
	tracing.SetError(failed, assert.AnError)
	failed.End()

	_, ok := p.Tracer().Start(context.Background(), "ok")
	tracing.SetError(ok, nil)
	ok.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)
}
