package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TemplateHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cnpool",
		Name:      "template_height",
		Help:      "Height of the current block template.",
	})

	TemplateDifficulty = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cnpool",
		Name:      "template_difficulty",
		Help:      "Network difficulty of the current block template.",
	})

	MinersConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cnpool",
		Name:      "miners_connected",
		Help:      "Number of active Stratum miner sessions, by listening port.",
	}, []string{"port"})

	FederationPeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cnpool",
		Name:      "federation_peers_connected",
		Help:      "Number of connected federation gossip peers.",
	})

	SharesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "shares_accepted_total",
		Help:      "Total valid Stratum shares accepted.",
	})

	SharesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "shares_rejected_total",
		Help:      "Total Stratum shares rejected, by reason.",
	}, []string{"reason"})

	VardiffAdjustments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "vardiff_adjustments_total",
		Help:      "Total per-session difficulty retargets.",
	})

	BlocksFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "blocks_found_total",
		Help:      "Total candidate blocks submitted to the daemon.",
	})

	BlockSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "block_submissions_total",
		Help:      "Block submission attempts by result.",
	}, []string{"result"})

	BlocksUnlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "blocks_unlocked_total",
		Help:      "Candidate blocks resolved by the unlocker, by final status.",
	}, []string{"status"})

	PayoutTransfers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cnpool",
		Name:      "payout_transfers_total",
		Help:      "Total wallet transfer batches sent by process_payments.",
	})

	UptimeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cnpool",
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	})
)

func init() {
	prometheus.MustRegister(
		TemplateHeight,
		TemplateDifficulty,
		MinersConnected,
		FederationPeersConnected,
		SharesAccepted,
		SharesRejected,
		VardiffAdjustments,
		BlocksFound,
		BlockSubmissions,
		BlocksUnlocked,
		PayoutTransfers,
		UptimeSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
