// Package metrics exposes node observability gauges and counters on an
// HTTP /metrics endpoint (SPEC_FULL.md §5: "exposed on an HTTP /metrics
// endpoint, mirroring arejula27/p2pool-go").
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TipHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenet",
		Name:      "tip_height",
		Help:      "Height of the current canonical chain tip.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenet",
		Name:      "peers_connected",
		Help:      "Number of Ready peer sessions.",
	})

	MempoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenet",
		Name:      "mempool_size",
		Help:      "Number of transactions currently in the mempool.",
	})

	MempoolBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenet",
		Name:      "mempool_bytes",
		Help:      "Total serialized size of the mempool in bytes.",
	})

	TemplateEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenet",
		Name:      "template_epoch",
		Help:      "Current template epoch counter.",
	})

	BlocksAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tenet",
		Name:      "blocks_accepted_total",
		Help:      "Total blocks accepted onto the canonical chain or a side chain.",
	})

	BlocksRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tenet",
		Name:      "blocks_rejected_total",
		Help:      "Total blocks rejected by consensus validation.",
	})

	Reorgs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tenet",
		Name:      "reorgs_total",
		Help:      "Total chain reorganizations performed.",
	})

	BlockOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenet",
		Name:      "block_outcomes_total",
		Help:      "Block submission outcomes by result.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		TipHeight,
		PeersConnected,
		MempoolSize,
		MempoolBytes,
		TemplateEpoch,
		BlocksAccepted,
		BlocksRejected,
		Reorgs,
		BlockOutcomes,
	)
}

// Handler returns an HTTP handler serving Prometheus-formatted metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
