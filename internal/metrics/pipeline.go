package metrics

import "github.com/prometheus/client_golang/prometheus"

// Document pipeline metrics.
var (
	DocumentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpora",
			Name:      "documents_processed_total",
			Help:      "Documents run through the ingestion pipeline",
		},
		[]string{"file_type", "status"}, // status: ready / error
	)

	ChunksCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpora",
			Name:      "chunks_created_total",
			Help:      "Chunks produced by the splitter",
		},
		[]string{"strategy"},
	)

	VectorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpora",
			Name:      "vector_ops_total",
			Help:      "Vector store operations",
		},
		[]string{"backend", "op", "status"},
	)

	VectorOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpora",
			Name:      "vector_op_duration_seconds",
			Help:      "Vector store operation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend", "op"},
	)

	NamespaceMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpora",
			Name:      "namespace_mismatches_total",
			Help:      "Search hits dropped because their owner did not match the queried namespace",
		},
		[]string{"backend"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers the pipeline collectors. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(DocumentsProcessedTotal)
	prometheus.MustRegister(ChunksCreatedTotal)
	prometheus.MustRegister(VectorOpsTotal)
	prometheus.MustRegister(VectorOpDuration)
	prometheus.MustRegister(NamespaceMismatchesTotal)
	pipelineMetricsRegistered = true
}
