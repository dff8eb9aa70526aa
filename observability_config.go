package apikeys

import (
	"go.uber.org/zap"
)

// ObservabilityConfig configures metrics, audit logging and tracing.
// All features are opt-in and can be enabled independently.
type ObservabilityConfig struct {
	// EnableMetrics enables operational metrics collection
	EnableMetrics bool

	// EnableAudit enables audit event logging
	EnableAudit bool

	// EnableTracing enables distributed tracing
	EnableTracing bool

	// MetricsProvider is used when EnableMetrics is true.
	// If nil, a PrometheusMetrics on a fresh registry is created.
	MetricsProvider MetricsProvider

	// AuditProvider is used when EnableAudit is true.
	// If nil, a StructuredAuditLogger on the package logger is created.
	AuditProvider AuditProvider

	// TracingProvider is used when EnableTracing is true.
	// If nil, an OTelTracingProvider on the global tracer provider is created.
	TracingProvider TracingProvider

	// MetricsNamespace is the namespace prefix for metrics.
	// Default: "apikeys"
	MetricsNamespace string

	// AuditSuccessEvents determines whether successful authentications are audited.
	// This can generate high volume. Failures are always audited.
	// Default: false
	AuditSuccessEvents bool

	// AuditSampleRate controls the sampling rate for successful authentication events (0.0-1.0).
	// Default: 1.0
	AuditSampleRate float64
}

// NewObservabilityConfig creates a new ObservabilityConfig with default values
func NewObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		MetricsNamespace: "apikeys",
		AuditSampleRate:  1.0,
	}
}

// Validate validates the observability configuration
func (c *ObservabilityConfig) Validate() error {
	if c == nil {
		return nil // all features disabled
	}

	errs := &ValidationErrors{}
	if c.AuditSampleRate < 0.0 || c.AuditSampleRate > 1.0 {
		errs.Add("audit_sample_rate", "must be between 0.0 and 1.0")
	}
	return errs.ToError()
}

// Build resolves the configuration into providers. Disabled features get no-ops.
func (c *ObservabilityConfig) Build(logger *zap.Logger) *Observability {
	if c == nil {
		return NewObservability(nil, nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics MetricsProvider
	if c.EnableMetrics {
		metrics = c.MetricsProvider
		if metrics == nil {
			metrics = NewPrometheusMetrics(c.MetricsNamespace, nil)
		}
	}

	var audit AuditProvider
	if c.EnableAudit {
		audit = c.AuditProvider
		if audit == nil {
			audit = NewStructuredAuditLogger(logger.Named(CLASS_AUDIT), c.AuditSampleRate, c.AuditSuccessEvents)
		}
	}

	var tracing TracingProvider
	if c.EnableTracing {
		tracing = c.TracingProvider
		if tracing == nil {
			tracing = NewOTelTracingProvider(nil)
		}
	}

	return NewObservability(metrics, audit, tracing)
}
