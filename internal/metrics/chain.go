// Package metrics exposes application metrics collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chainProcessHeadersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "chain",
		Name:      "process_headers_total",
		Help:      "Count of processed header batches.",
	}, []string{"network", "status"})

	chainProcessHeadersDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spvchain",
		Subsystem: "chain",
		Name:      "process_headers_duration_seconds",
		Help:      "Duration of validating and storing a header batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "status"})

	chainProcessHeadersSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spvchain",
		Subsystem: "chain",
		Name:      "process_headers_size",
		Help:      "Number of headers per processed batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1..2048
	}, []string{"network"})

	chainTipHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spvchain",
		Subsystem: "chain",
		Name:      "tip_height",
		Help:      "Height of the current best block.",
	}, []string{"network"})

	chainReorgsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "chain",
		Name:      "reorgs_total",
		Help:      "Count of reorganizations of the best chain.",
	}, []string{"network"})

	chainReorgDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spvchain",
		Subsystem: "chain",
		Name:      "reorg_depth",
		Help:      "Number of blocks removed from the best chain per reorganization.",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 32, 64},
	}, []string{"network"})
)

// Chain tracks metrics for header chain processing.
type Chain struct {
	network string
}

// NewChain constructs a Chain collector for network.
func NewChain(network string) *Chain {
	if network == "" {
		network = "unknown"
	}
	return &Chain{network: network}
}

// ObserveProcessHeaders records a header batch outcome, size and duration.
func (m Chain) ObserveProcessHeaders(err error, count int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	chainProcessHeadersTotal.WithLabelValues(m.network, status).Inc()
	chainProcessHeadersDuration.WithLabelValues(m.network, status).Observe(time.Since(started).Seconds())
	chainProcessHeadersSize.WithLabelValues(m.network).Observe(float64(count))
}

// ObserveTip records the current tip height.
func (m Chain) ObserveTip(height uint64) {
	chainTipHeight.WithLabelValues(m.network).Set(float64(height))
}

// ObserveReorg records a reorganization that removed depth blocks.
func (m Chain) ObserveReorg(depth int) {
	chainReorgsTotal.WithLabelValues(m.network).Inc()
	chainReorgDepth.WithLabelValues(m.network).Observe(float64(depth))
}
