package vectorstore

import (
	"time"

	"github.com/corpora-dev/corpora/internal/metrics"
)

// ObserveOp records one backend operation in the shared pipeline metrics.
func ObserveOp(backend, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.VectorOpsTotal.WithLabelValues(backend, op, status).Inc()
	metrics.VectorOpDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// DropMismatch counts a search hit discarded because its stored owner did
// not match the queried namespace.
func DropMismatch(backend string) {
	metrics.NamespaceMismatchesTotal.WithLabelValues(backend).Inc()
}
