// Package metrics instruments the consensus engine's surroundings with
// Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	TxCreated          prometheus.Counter
	VotesTotal         *prometheus.CounterVec
	BankApprovals      prometheus.Counter
	BroadcastDuration  prometheus.Histogram
	BroadcastApprovals prometheus.Histogram
	StatusTransitions  *prometheus.CounterVec
	ChainWriteErrors   prometheus.Counter
}

// New registers the collectors on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TxCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transactions_created_total",
			Help: "Total transactions accepted by the orchestrator.",
		}),
		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Total votes recorded, by decision.",
		}, []string{"decision"}),
		BankApprovals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bank_approvals_total",
			Help: "Total bank approvals merged into transactions.",
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bank_broadcast_duration_seconds",
			Help:    "Histogram of full bank broadcast round durations.",
			Buckets: prometheus.DefBuckets,
		}),
		BroadcastApprovals: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bank_broadcast_approvals",
			Help:    "Approvals collected per broadcast round.",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Status transitions committed, by resulting status.",
		}, []string{"status"}),
		ChainWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chain_write_errors_total",
			Help: "Failed writes to the immutable ledger.",
		}),
	}
	reg.MustRegister(
		m.TxCreated,
		m.VotesTotal,
		m.BankApprovals,
		m.BroadcastDuration,
		m.BroadcastApprovals,
		m.StatusTransitions,
		m.ChainWriteErrors,
	)
	return m
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
