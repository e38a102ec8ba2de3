package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sells-group/leadsync/internal/config"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = prev
		_ = Init(context.Background(), config.TelemetryConfig{}, "test")
	})
	return &buf
}

func TestInit_DisabledInstallsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), config.TelemetryConfig{}, "test"))

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_StdoutExportsSpans(t *testing.T) {
	buf := captureStdout(t)
	ctx := context.Background()

	require.NoError(t, Init(ctx, config.TelemetryConfig{Enabled: true, Stdout: true, ServiceName: "leadsync-test"}, "v0.0.1"))
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)

	_, span := otel.Tracer("test").Start(ctx, "ingest.import")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := otel.Meter("test").Int64Counter("leadsync.records")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	require.NoError(t, Shutdown(ctx))
	out := buf.String()
	assert.Contains(t, out, "ingest.import")
	assert.Contains(t, out, "leadsync.records")
	assert.Contains(t, out, "leadsync-test")
}

func TestInit_EnabledWithoutExporterFallsBackToStdout(t *testing.T) {
	buf := captureStdout(t)
	ctx := context.Background()

	require.NoError(t, Init(ctx, config.TelemetryConfig{Enabled: true}, "v0.0.1"))
	_, span := otel.Tracer("test").Start(ctx, "fallback")
	span.End()
	require.NoError(t, Shutdown(ctx))
	assert.Contains(t, buf.String(), "fallback")
}

func TestShutdown_Idempotent(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
	assert.NoError(t, Shutdown(context.Background()))
}
