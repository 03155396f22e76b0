package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestOTelConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OTelConfig
		wantErr string
	}{
		{name: "disabled ignores the rest", cfg: OTelConfig{SampleRatio: 5}},
		{name: "valid", cfg: OTelConfig{Enabled: true, Endpoint: "collector:4317", ServiceName: "tally", SampleRatio: 0.5}},
		{name: "endpoint", cfg: OTelConfig{Enabled: true, ServiceName: "tally"}, wantErr: "endpoint is required"},
		{name: "service name", cfg: OTelConfig{Enabled: true, Endpoint: "collector:4317"}, wantErr: "service name is required"},
		{name: "ratio", cfg: OTelConfig{Enabled: true, Endpoint: "collector:4317", ServiceName: "tally", SampleRatio: 1.5}, wantErr: "sample ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, ShutdownOTel(context.Background(), providers, nil))
}

func TestInitOTel_RejectsInvalidConfig(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, nil)
	assert.ErrorContains(t, err, "endpoint is required")
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestOTelProviders_Shutdown(t *testing.T) {
	var none *OTelProviders
	assert.NoError(t, none.Shutdown(context.Background()))

	p := &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}
	assert.NoError(t, ShutdownOTel(context.Background(), p, nil))
}

func TestWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	// no span: logger unchanged
	assert.Same(t, logger, WithTraceContext(context.Background(), logger))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tracetest.NewSpanRecorder()))
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	WithTraceContext(ctx, logger).Info("traced")
	sc := trace.SpanContextFromContext(ctx)
	assert.Contains(t, buf.String(), `"trace_id":"`+sc.TraceID().String()+`"`)
	assert.Contains(t, buf.String(), `"span_id":"`+sc.SpanID().String()+`"`)
}
