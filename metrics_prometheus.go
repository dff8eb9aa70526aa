package apikeys

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LABEL_OUTCOME    = "outcome"
	LABEL_REASON     = "reason"
	LABEL_TENANT_ID  = "tenant_id"
	LABEL_CACHE_HIT  = "cache_hit"
	LABEL_OPERATION  = "operation"
	LABEL_ERROR_TYPE = "error_type"
	LABEL_SCOPE      = "scope"

	LABEL_VALUE_UNKNOWN = "unknown"
	LABEL_VALUE_NONE    = "none"

	OUTCOME_SUCCESS = "success"
	OUTCOME_FAILURE = "failure"
	OUTCOME_DROPPED = "dropped"
)

// PrometheusMetrics implements MetricsProvider using Prometheus client library
type PrometheusMetrics struct {
	namespace string
	registry  *prometheus.Registry

	// Authentication metrics
	authAttempts *prometheus.CounterVec
	authLatency  *prometheus.HistogramVec
	authErrors   *prometheus.CounterVec

	// Authorization metrics
	scopeDenials *prometheus.CounterVec

	// Operation metrics
	operationLatency *prometheus.HistogramVec
	operationErrors  *prometheus.CounterVec

	// Last use bookkeeping
	lastUsedUpdates *prometheus.CounterVec

	// Cache metrics
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with the given namespace.
// If registry is nil, a fresh registry is created so several instances can coexist.
func NewPrometheusMetrics(namespace string, registry *prometheus.Registry) *PrometheusMetrics {
	if namespace == "" {
		namespace = "apikeys"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	factory := promauto.With(registry)

	p := &PrometheusMetrics{
		namespace: namespace,
		registry:  registry,
	}

	p.authAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of API key authentication attempts",
		},
		[]string{LABEL_OUTCOME, LABEL_REASON, LABEL_TENANT_ID},
	)

	p.authLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_duration_seconds",
			Help:      "API key authentication latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{LABEL_OUTCOME, LABEL_CACHE_HIT},
	)

	p.authErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_errors_total",
			Help:      "Total number of rejected API key authentications by reason",
		},
		[]string{LABEL_REASON},
	)

	p.scopeDenials = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scope_denials_total",
			Help:      "Total number of requests rejected for a missing scope",
		},
		[]string{LABEL_SCOPE},
	)

	p.operationLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Key management operation latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LABEL_OPERATION, LABEL_TENANT_ID},
	)

	p.operationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Total number of key management operation errors by type",
		},
		[]string{LABEL_OPERATION, LABEL_ERROR_TYPE},
	)

	p.lastUsedUpdates = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "last_used_updates_total",
			Help:      "Best-effort last use updates by outcome",
		},
		[]string{LABEL_OUTCOME},
	)

	p.cacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of authentication cache hits",
		},
	)

	p.cacheMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of authentication cache misses",
		},
	)

	p.cacheEvictions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache evictions by reason",
		},
		[]string{LABEL_REASON},
	)

	return p
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

// RecordAuthAttempt records an authentication attempt with outcome and latency
func (p *PrometheusMetrics) RecordAuthAttempt(ctx context.Context, success bool, latency time.Duration, labels map[string]string) {
	outcome := OUTCOME_FAILURE
	if success {
		outcome = OUTCOME_SUCCESS
	}

	reason := labelOr(labels, LABEL_REASON, LABEL_VALUE_NONE)
	tenantID := labelOr(labels, LABEL_TENANT_ID, LABEL_VALUE_UNKNOWN)
	cacheHit := labelOr(labels, LABEL_CACHE_HIT, strconv.FormatBool(false))

	p.authAttempts.WithLabelValues(outcome, reason, tenantID).Inc()
	p.authLatency.WithLabelValues(outcome, cacheHit).Observe(latency.Seconds())
}

// RecordAuthError records an authentication failure by reason
func (p *PrometheusMetrics) RecordAuthError(ctx context.Context, reason string, labels map[string]string) {
	if reason == "" {
		reason = LABEL_VALUE_UNKNOWN
	}
	p.authErrors.WithLabelValues(reason).Inc()
}

// RecordOperation records a service operation with latency
func (p *PrometheusMetrics) RecordOperation(ctx context.Context, operation string, latency time.Duration, labels map[string]string) {
	tenantID := labelOr(labels, LABEL_TENANT_ID, LABEL_VALUE_UNKNOWN)
	p.operationLatency.WithLabelValues(operation, tenantID).Observe(latency.Seconds())
}

// RecordOperationError records a service operation error
func (p *PrometheusMetrics) RecordOperationError(ctx context.Context, operation string, errorType string) {
	p.operationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordScopeDenied records a scope guard rejection
func (p *PrometheusMetrics) RecordScopeDenied(ctx context.Context, scope string) {
	p.scopeDenials.WithLabelValues(scope).Inc()
}

// RecordLastUsedUpdate records the outcome of a last use update
func (p *PrometheusMetrics) RecordLastUsedUpdate(ctx context.Context, outcome string) {
	p.lastUsedUpdates.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a cache hit event
func (p *PrometheusMetrics) RecordCacheHit(ctx context.Context) {
	p.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss event
func (p *PrometheusMetrics) RecordCacheMiss(ctx context.Context) {
	p.cacheMisses.Inc()
}

// RecordCacheEviction records a cache eviction event
func (p *PrometheusMetrics) RecordCacheEviction(ctx context.Context, reason string) {
	if reason == "" {
		reason = LABEL_VALUE_UNKNOWN
	}
	p.cacheEvictions.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}
