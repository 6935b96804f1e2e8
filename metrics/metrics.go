package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AlertsCreatedTotal counts persisted alerts by category.
	AlertsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alerts",
		Subsystem: "service",
		Name:      "created_total",
		Help:      "Total number of alerts persisted, labeled by category.",
	}, []string{"category"})

	// ProofsProcessedTotal counts processed proof files by kind and result.
	ProofsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alerts",
		Subsystem: "proofs",
		Name:      "processed_total",
		Help:      "Total number of proof files processed, labeled by media kind and result.",
	}, []string{"kind", "result"})

	// ProofProcessingDurationSeconds is per-file processing time inside the pipeline.
	ProofProcessingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alerts",
		Subsystem: "proofs",
		Name:      "processing_duration_seconds",
		Help:      "Time to process one proof file (store + resize/thumbnail).",
		// Keep buckets fairly coarse to avoid high-cardinality time series.
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"kind"})

	// StatusTransitionsTotal counts webhook status transitions by new status.
	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alerts",
		Subsystem: "service",
		Name:      "status_transitions_total",
		Help:      "Total number of service-originated status transitions, labeled by status.",
	}, []string{"status"})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AlertsCreatedTotal,
			ProofsProcessedTotal,
			ProofProcessingDurationSeconds,
			StatusTransitionsTotal,
		)
	})
}
