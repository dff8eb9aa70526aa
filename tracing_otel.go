package apikeys

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TRACER_NAME = "github.com/abrahamahn/go-apikeys"

// OTelTracingProvider implements TracingProvider on an OpenTelemetry tracer provider.
type OTelTracingProvider struct {
	tracer trace.Tracer
}

// NewOTelTracingProvider uses the global tracer provider when tp is nil.
func NewOTelTracingProvider(tp trace.TracerProvider) *OTelTracingProvider {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelTracingProvider{tracer: tp.Tracer(TRACER_NAME)}
}

// StartSpan starts a span named after the operation
func (o *OTelTracingProvider) StartSpan(ctx context.Context, operation string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, operation, trace.WithAttributes(
		attribute.String("component", PACKAGE_NAME),
	))
	return ctx, &otelSpan{span: span}
}

// ExtractTraceContext reads the active span context, if any
func (o *OTelTracingProvider) ExtractTraceContext(ctx context.Context) TraceContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceContext{}
	}
	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Flags:   byte(sc.TraceFlags()),
	}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.span.End()
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
