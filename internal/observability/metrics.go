// Package observability exposes the engine's Prometheus counters.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_bids_accepted_total",
		Help: "Bids that committed successfully.",
	})

	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_rejected_total",
		Help: "Bids rejected before or during commit, by reason.",
	}, []string{"reason"})

	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sweep_runs_total",
		Help: "Closing sweep executions.",
	})

	SweepProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sweep_processed_total",
		Help: "Auctions transitioned by the closing sweep.",
	})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_sweep_errors_total",
		Help: "Auctions that errored during a sweep and will be retried.",
	})
)
