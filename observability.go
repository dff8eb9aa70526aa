package apikeys

import (
	"context"
	"time"
)

// Observability provides a centralized access point for all observability features
// including metrics, audit logging, and tracing.
type Observability struct {
	Metrics MetricsProvider
	Audit   AuditProvider
	Tracing TracingProvider
}

// MetricsProvider defines the interface for recording operational metrics.
type MetricsProvider interface {
	// RecordAuthAttempt records an authentication attempt with outcome and latency.
	// labels may carry "reason", "tenant_id" and "cache_hit".
	RecordAuthAttempt(ctx context.Context, success bool, latency time.Duration, labels map[string]string)

	// RecordAuthError records an authentication failure by reason
	RecordAuthError(ctx context.Context, reason string, labels map[string]string)

	// RecordOperation records a service operation with latency
	RecordOperation(ctx context.Context, operation string, latency time.Duration, labels map[string]string)

	// RecordOperationError records a service operation error
	RecordOperationError(ctx context.Context, operation string, errorType string)

	// RecordScopeDenied records a request rejected by the scope guard
	RecordScopeDenied(ctx context.Context, scope string)

	// RecordLastUsedUpdate records the outcome of a best-effort last use update
	// ("success", "failure" or "dropped")
	RecordLastUsedUpdate(ctx context.Context, outcome string)

	// RecordCacheHit records an authentication cache hit
	RecordCacheHit(ctx context.Context)

	// RecordCacheMiss records an authentication cache miss
	RecordCacheMiss(ctx context.Context)

	// RecordCacheEviction records a cache eviction event
	RecordCacheEviction(ctx context.Context, reason string)
}

// AuditProvider defines the interface for audit logging.
// Events carry the public key shape only, never plaintext or digest.
type AuditProvider interface {
	// LogAuthAttempt logs an authentication attempt event
	LogAuthAttempt(ctx context.Context, event *AuthAttemptEvent) error

	// LogKeyCreated logs an API key creation event
	LogKeyCreated(ctx context.Context, event *KeyLifecycleEvent) error

	// LogKeyRevoked logs an API key revocation event
	LogKeyRevoked(ctx context.Context, event *KeyLifecycleEvent) error

	// LogKeyDeleted logs an API key deletion event
	LogKeyDeleted(ctx context.Context, event *KeyLifecycleEvent) error

	// LogSecurityEvent logs scope denials, rate limit hits and similar
	LogSecurityEvent(ctx context.Context, event *SecurityEvent) error
}

// TracingProvider defines the interface for distributed tracing.
type TracingProvider interface {
	// StartSpan starts a new span for the given operation
	StartSpan(ctx context.Context, operation string) (context.Context, Span)

	// ExtractTraceContext extracts trace context from the provided context
	ExtractTraceContext(ctx context.Context) TraceContext
}

// Span represents a distributed tracing span
type Span interface {
	// SetAttribute sets an attribute on the span
	SetAttribute(key string, value interface{})

	// RecordError records an error that occurred during the span
	RecordError(err error)

	// End completes the span
	End()
}

// TraceContext represents distributed tracing context
type TraceContext struct {
	TraceID string
	SpanID  string
	Flags   byte
}

// NewObservability creates a new Observability instance with the provided providers.
// If any provider is nil, a no-op implementation will be used.
func NewObservability(metrics MetricsProvider, audit AuditProvider, tracing TracingProvider) *Observability {
	if metrics == nil {
		metrics = &NoOpMetricsProvider{}
	}
	if audit == nil {
		audit = &NoOpAuditProvider{}
	}
	if tracing == nil {
		tracing = &NoOpTracingProvider{}
	}

	return &Observability{
		Metrics: metrics,
		Audit:   audit,
		Tracing: tracing,
	}
}

// stampTrace copies the current trace ids onto an audit event.
func (o *Observability) stampTrace(ctx context.Context, event *BaseAuditEvent) {
	tc := o.Tracing.ExtractTraceContext(ctx)
	event.TraceID = tc.TraceID
	event.SpanID = tc.SpanID
}
