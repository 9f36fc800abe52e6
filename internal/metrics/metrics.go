package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels: source is push|pull, status is applied|ignored|skipped|failed.
var (
	LogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionscan",
		Name:      "logs_total",
		Help:      "Ingested logs by source and processing outcome.",
	}, []string{"source", "status"})

	LogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionscan",
		Name:      "log_errors_total",
		Help:      "Classified processing failures by error kind.",
	}, []string{"kind"})

	RangeSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auctionscan",
		Name:      "range_splits_total",
		Help:      "Block ranges sub-divided after a provider rejection.",
	})

	BlocksScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auctionscan",
		Name:      "blocks_scanned_total",
		Help:      "Blocks covered by completed scan ranges.",
	})

	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionscan",
		Name:      "webhook_requests_total",
		Help:      "Webhook deliveries by HTTP status class.",
	}, []string{"code"})

	AuctionsReconstructed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auctionscan",
		Name:      "auctions_reconstructed_total",
		Help:      "Auction snapshots rebuilt from creation transactions.",
	})
)
