package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	telemetry, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(ErrorLevel, &bytes.Buffer{}))
	require.NoError(t, err)
	assert.Nil(t, telemetry)
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("no span leaves logger unchanged", func(t *testing.T) {
		assert.Same(t, logger, WithTraceContext(context.Background(), logger))
	})

	t.Run("active span adds ids", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		WithTraceContext(ctx, logger).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	})
}
