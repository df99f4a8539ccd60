package metrics

import "github.com/prometheus/client_golang/prometheus"

// Extraction Prometheus metrics.
var (
	ExtractionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visim",
			Name:      "extraction_requests_total",
			Help:      "Total number of embedding extraction attempts",
		},
		[]string{"backend", "status"},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visim",
			Name:      "extraction_duration_seconds",
			Help:      "Embedding extraction duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	ExtractionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visim",
			Name:      "extraction_errors_total",
			Help:      "Total extraction errors by kind",
		},
		[]string{"backend", "error_type"},
	)

	ExtractionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visim",
			Name:      "extraction_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var extractionMetricsRegistered bool

// RegisterExtractionMetrics registers extraction metrics. Must be called once from main.
func RegisterExtractionMetrics() {
	if extractionMetricsRegistered {
		return
	}
	prometheus.MustRegister(ExtractionRequestsTotal)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(ExtractionErrorsTotal)
	prometheus.MustRegister(ExtractionCacheTotal)
	extractionMetricsRegistered = true
}
