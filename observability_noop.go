package apikeys

import (
	"context"
	"time"
)

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
type NoOpMetricsProvider struct{}

func (n *NoOpMetricsProvider) RecordAuthAttempt(ctx context.Context, success bool, latency time.Duration, labels map[string]string) {
}

func (n *NoOpMetricsProvider) RecordAuthError(ctx context.Context, reason string, labels map[string]string) {
}

func (n *NoOpMetricsProvider) RecordOperation(ctx context.Context, operation string, latency time.Duration, labels map[string]string) {
}

func (n *NoOpMetricsProvider) RecordOperationError(ctx context.Context, operation string, errorType string) {
}

func (n *NoOpMetricsProvider) RecordScopeDenied(ctx context.Context, scope string) {}

func (n *NoOpMetricsProvider) RecordLastUsedUpdate(ctx context.Context, outcome string) {}

func (n *NoOpMetricsProvider) RecordCacheHit(ctx context.Context) {}

func (n *NoOpMetricsProvider) RecordCacheMiss(ctx context.Context) {}

func (n *NoOpMetricsProvider) RecordCacheEviction(ctx context.Context, reason string) {}

// NoOpAuditProvider is a no-op implementation of AuditProvider.
type NoOpAuditProvider struct{}

func (n *NoOpAuditProvider) LogAuthAttempt(ctx context.Context, event *AuthAttemptEvent) error {
	return nil
}

func (n *NoOpAuditProvider) LogKeyCreated(ctx context.Context, event *KeyLifecycleEvent) error {
	return nil
}

func (n *NoOpAuditProvider) LogKeyRevoked(ctx context.Context, event *KeyLifecycleEvent) error {
	return nil
}

func (n *NoOpAuditProvider) LogKeyDeleted(ctx context.Context, event *KeyLifecycleEvent) error {
	return nil
}

func (n *NoOpAuditProvider) LogSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	return nil
}

// NoOpTracingProvider is a no-op implementation of TracingProvider.
type NoOpTracingProvider struct{}

// StartSpan returns the context unchanged and a span that records nothing
func (n *NoOpTracingProvider) StartSpan(ctx context.Context, operation string) (context.Context, Span) {
	return ctx, &noOpSpan{}
}

// ExtractTraceContext returns an empty trace context
func (n *NoOpTracingProvider) ExtractTraceContext(ctx context.Context) TraceContext {
	return TraceContext{}
}

type noOpSpan struct{}

func (s *noOpSpan) SetAttribute(key string, value interface{}) {}

func (s *noOpSpan) RecordError(err error) {}

func (s *noOpSpan) End() {}
