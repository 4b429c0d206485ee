package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks the latency of core operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "loyalty_operation_duration_seconds",
			Help: "Duration of loyalty core operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "result"},
	)

	// CodeCollisions counts generated codes that were already taken,
	// whether caught by the pre-check or by the unique constraint.
	CodeCollisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_code_collisions_total",
			Help: "Generated stamp and ticket codes that collided with an existing code",
		},
		[]string{"kind"}, // stamp or ticket
	)

	// Expired counts records moved to expired, by entity and path.
	Expired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_expired_total",
			Help: "Stamps and tickets transitioned to expired",
		},
		[]string{"entity", "path"}, // path: lazy or sweep
	)
)

// RecordOperation records the duration of a core operation. result is the
// outcome label, e.g. "success", "expired" or "error".
func RecordOperation(operation, result string, duration float64) {
	OperationDuration.WithLabelValues(operation, result).Observe(duration)
}

// RecordCollisions adds n collisions for a code kind.
func RecordCollisions(kind string, n int) {
	if n > 0 {
		CodeCollisions.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordExpired adds n expirations for an entity.
func RecordExpired(entity, path string, n int64) {
	if n > 0 {
		Expired.WithLabelValues(entity, path).Add(float64(n))
	}
}
