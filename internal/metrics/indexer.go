package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexerFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "indexer",
		Name:      "flush_total",
		Help:      "Count of header batches written to the index.",
	}, []string{"network", "status"})

	indexerFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spvchain",
		Subsystem: "indexer",
		Name:      "flush_duration_seconds",
		Help:      "Duration of writing a header batch to the index.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "status"})

	indexerRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "indexer",
		Name:      "rows_total",
		Help:      "Count of header rows written to the index.",
	}, []string{"network"})

	indexerBackfillTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "indexer",
		Name:      "backfill_chunks_total",
		Help:      "Count of backfilled height chunks.",
	}, []string{"network", "status"})

	indexerBackfillDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spvchain",
		Subsystem: "indexer",
		Name:      "backfill_chunk_duration_seconds",
		Help:      "Duration of backfilling a chunk of heights.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "status"})
)

// Indexer tracks metrics for the header index exporter.
type Indexer struct {
	network string
}

// NewIndexer constructs an Indexer collector for network.
func NewIndexer(network string) *Indexer {
	if network == "" {
		network = "unknown"
	}
	return &Indexer{network: network}
}

// ObserveFlush records a batch write of rows headers.
func (m Indexer) ObserveFlush(err error, rows int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	indexerFlushTotal.WithLabelValues(m.network, status).Inc()
	indexerFlushDuration.WithLabelValues(m.network, status).Observe(time.Since(started).Seconds())
	if err == nil {
		indexerRowsTotal.WithLabelValues(m.network).Add(float64(rows))
	}
}

// ObserveBackfill records a backfilled chunk of heights.
func (m Indexer) ObserveBackfill(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	indexerBackfillTotal.WithLabelValues(m.network, status).Inc()
	indexerBackfillDuration.WithLabelValues(m.network, status).Observe(time.Since(started).Seconds())
}
