package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index and query Prometheus metrics.
var (
	IndexedVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "visim",
			Name:      "indexed_vectors",
			Help:      "Number of vectors currently in the session index",
		},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "visim",
			Name:      "query_duration_seconds",
			Help:      "Similarity query duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	QueryCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "visim",
			Name:      "query_candidates",
			Help:      "Candidate-set size per similarity query before re-ranking",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visim",
			Name:      "batch_items_total",
			Help:      "Batch extraction items by outcome",
		},
		[]string{"status"}, // "ok" / "error"
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers index and query metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexedVectors)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryCandidates)
	prometheus.MustRegister(BatchItemsTotal)
	indexMetricsRegistered = true
}
