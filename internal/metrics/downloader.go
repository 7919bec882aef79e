package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloaderResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "downloader",
		Name:      "responses_total",
		Help:      "Count of block data responses matched to a request.",
	}, []string{"network", "kind", "status"})

	downloaderResponseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "spvchain",
		Subsystem: "downloader",
		Name:      "response_latency_seconds",
		Help:      "Time between a block data request and its response.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"network", "kind", "status"})

	downloaderUnmatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "downloader",
		Name:      "unmatched_responses_total",
		Help:      "Count of late or duplicate responses dropped by the downloader.",
	}, []string{"network", "kind"})

	downloaderInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spvchain",
		Subsystem: "downloader",
		Name:      "in_flight",
		Help:      "Number of outstanding block data requests.",
	}, []string{"network"})
)

// Downloader tracks metrics for windowed block downloads.
type Downloader struct {
	network string
}

// NewDownloader constructs a Downloader collector for network.
func NewDownloader(network string) *Downloader {
	if network == "" {
		network = "unknown"
	}
	return &Downloader{network: network}
}

// ObserveResponse records a matched response of kind and its latency.
func (m Downloader) ObserveResponse(kind string, err error, requested time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	downloaderResponsesTotal.WithLabelValues(m.network, kind, status).Inc()
	downloaderResponseLatency.WithLabelValues(m.network, kind, status).Observe(time.Since(requested).Seconds())
}

// ObserveUnmatched records a dropped response of kind.
func (m Downloader) ObserveUnmatched(kind string) {
	downloaderUnmatchedTotal.WithLabelValues(m.network, kind).Inc()
}

// ObserveInFlight records the number of outstanding requests.
func (m Downloader) ObserveInFlight(n int) {
	downloaderInFlight.WithLabelValues(m.network).Set(float64(n))
}
