// Package metrics provides Prometheus metrics for the secrets service.
// It tracks secret operation counts and latencies, the active backend,
// key-value store statistics, database pool usage, circuit breaker and
// rate limiter activity and HTTP latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hishamos"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
	0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// =============================================================================
// Secret Operation Metrics
// =============================================================================

var (
	// SecretOperations counts secret operations by outcome.
	SecretOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secret_operations_total",
			Help:      "Total number of secret operations",
		},
		[]string{"operation", "backend", "result"}, // result: success, not_found, invalid, unavailable, error
	)

	// SecretOperationLatency tracks secret operation latency.
	SecretOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "secret_operation_duration_seconds",
			Help:      "Secret operation latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation", "backend"},
	)

	// SecretBackendInfo is 1 for the active backend and 0 for the others.
	SecretBackendInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "secret_backend_info",
			Help:      "Active secret backend (1 = active)",
		},
		[]string{"backend"},
	)
)

// =============================================================================
// Key-Value Store Metrics
// =============================================================================

var (
	// KVOperations mirrors the cumulative key-value store counters.
	KVOperations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kv_operations",
			Help:      "Cumulative key-value store operations by type",
		},
		[]string{"store", "type"}, // type: hits, misses, sets, deletes, errors
	)
)

// =============================================================================
// Audit / Database Metrics
// =============================================================================

var (
	// DBConnectionPoolSize tracks the audit database connection pool.
	DBConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool",
			Help:      "Database connection pool size by state",
		},
		[]string{"state"}, // active, idle, open, max, waiting
	)

	// DependencyHealth reports the last health check result per dependency.
	DependencyHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "Whether the last health check of a dependency succeeded (1) or failed (0)",
		},
		[]string{"dependency"},
	)

	// AuditWriteFailures counts audit entries that could not be persisted.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of audit entries that failed to persist",
		},
	)
)

// =============================================================================
// Resilience Metrics
// =============================================================================

var (
	// CircuitBreakerState tracks breaker state per backend (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)

	// RateLimitRejections counts requests rejected by the admin API limiter.
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
	)

	// RateLimiterBackendErrors counts distributed limiter failures by the
	// action taken (allow when failing open, deny otherwise).
	RateLimiterBackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_backend_errors_total",
			Help:      "Total number of distributed rate limiter backend errors",
		},
		[]string{"action"},
	)
)

// =============================================================================
// HTTP Metrics
// =============================================================================

var (
	// HTTPRequestLatency tracks HTTP request latency.
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"method", "status"},
	)
)
