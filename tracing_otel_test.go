package apikeys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*OTelTracingProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelTracingProvider(tp), recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

// =============================================================================
// OTelTracingProvider Tests
// =============================================================================

func TestOTelTracingProvider_StartSpan(t *testing.T) {
	tracing, recorder := newRecordingTracer(t)

	ctx, span := tracing.StartSpan(context.Background(), OPERATION_AUTHENTICATE)
	span.SetAttribute("key_id", "ak_1")
	span.SetAttribute("cached", true)
	span.SetAttribute("count", 3)
	span.SetAttribute("elapsed", 1500*time.Millisecond)
	span.SetAttribute("scopes", []string{"read"})

	tc := tracing.ExtractTraceContext(ctx)
	assert.Len(t, tc.TraceID, 32)
	assert.Len(t, tc.SpanID, 16)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, OPERATION_AUTHENTICATE, ended[0].Name())

	attrs := spanAttributes(ended[0])
	assert.Equal(t, PACKAGE_NAME, attrs["component"].AsString())
	assert.Equal(t, "ak_1", attrs["key_id"].AsString())
	assert.True(t, attrs["cached"].AsBool())
	assert.Equal(t, int64(3), attrs["count"].AsInt64())
	assert.Equal(t, int64(1500), attrs["elapsed"].AsInt64())
	assert.Equal(t, []string{"read"}, attrs["scopes"].AsStringSlice())
	assert.Equal(t, tc.TraceID, ended[0].SpanContext().TraceID().String())
}

func TestOTelTracingProvider_RecordError(t *testing.T) {
	tracing, recorder := newRecordingTracer(t)

	_, span := tracing.StartSpan(context.Background(), "op")
	span.RecordError(nil)
	span.RecordError(errInjected)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, errInjected.Error(), ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}

func TestOTelTracingProvider_ExtractWithoutSpan(t *testing.T) {
	tracing := NewOTelTracingProvider(nil)
	assert.Equal(t, TraceContext{}, tracing.ExtractTraceContext(context.Background()))
}

func TestOTelTracingProvider_ServiceSpansAndAuditStamps(t *testing.T) {
	tracing, recorder := newRecordingTracer(t)
	audit := newRecordingAudit()
	f := newServiceFixture(t, &APIKeyServiceOptions{Observability: NewObservability(nil, audit, tracing)})

	f.create(t, "u1", "traced")

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, OPERATION_CREATE_APIKEY)

	require.Len(t, audit.created, 1)
	assert.NotEmpty(t, audit.created[0].TraceID)
}
