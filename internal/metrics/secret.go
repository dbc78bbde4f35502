package metrics

import (
	"time"

	"github.com/hishamos/secrets/internal/kv"
)

var knownBackends = []string{"vault", "local", "none"}

// RecordSecretOperation records the outcome and latency of a secret operation.
func RecordSecretOperation(operation, backend, result string, latency time.Duration) {
	SecretOperations.WithLabelValues(operation, backend, result).Inc()
	SecretOperationLatency.WithLabelValues(operation, backend).Observe(latency.Seconds())
}

// SetSecretBackend marks backend as the active one.
func SetSecretBackend(backend string) {
	for _, b := range knownBackends {
		v := 0.0
		if b == backend {
			v = 1
		}
		SecretBackendInfo.WithLabelValues(b).Set(v)
	}
}

// UpdateKVStats publishes a snapshot of key-value store statistics.
func UpdateKVStats(store string, stats kv.Stats) {
	KVOperations.WithLabelValues(store, "hits").Set(float64(stats.Hits))
	KVOperations.WithLabelValues(store, "misses").Set(float64(stats.Misses))
	KVOperations.WithLabelValues(store, "sets").Set(float64(stats.Sets))
	KVOperations.WithLabelValues(store, "deletes").Set(float64(stats.Deletes))
	KVOperations.WithLabelValues(store, "errors").Set(float64(stats.Errors))
}

// SetDependencyHealth records the outcome of a dependency health check.
func SetDependencyHealth(dependency string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	DependencyHealth.WithLabelValues(dependency).Set(v)
}

// SetCircuitBreakerState records the breaker state of a backend.
func SetCircuitBreakerState(backend string, state int) {
	CircuitBreakerState.WithLabelValues(backend).Set(float64(state))
}
