package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	peersConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "spvchain",
		Subsystem: "peers",
		Name:      "connected",
		Help:      "Number of connected peers.",
	}, []string{"network"})

	peersDisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spvchain",
		Subsystem: "peers",
		Name:      "disconnects_total",
		Help:      "Count of peer disconnections.",
	}, []string{"network"})
)

// Peers tracks the peer group.
type Peers struct {
	network string
}

// NewPeers constructs a Peers collector for network.
func NewPeers(network string) *Peers {
	if network == "" {
		network = "unknown"
	}
	return &Peers{network: network}
}

// ObserveConnected records the number of connected peers.
func (m Peers) ObserveConnected(n int) {
	peersConnected.WithLabelValues(m.network).Set(float64(n))
}

// ObserveDisconnect records a peer leaving the group.
func (m Peers) ObserveDisconnect() {
	peersDisconnectsTotal.WithLabelValues(m.network).Inc()
}
