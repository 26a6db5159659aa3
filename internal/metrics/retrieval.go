package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and classification Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecmatch",
			Name:      "retrieval_requests_total",
			Help:      "Index retrieval calls by operation and status",
		},
		[]string{"op", "status"}, // op: search / search_batch
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vecmatch",
			Name:      "retrieval_duration_seconds",
			Help:      "Index retrieval round-trip duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)

	// ClassificationsTotal counts classification decisions.
	// modalities is "none", "text", "image" or "text+image"; outcome is "matched" or "default".
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecmatch",
			Name:      "classifications_total",
			Help:      "Classification decisions by contributing modalities and outcome",
		},
		[]string{"modalities", "outcome"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval and classification metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(ClassificationsTotal)
	retrievalMetricsRegistered = true
}
