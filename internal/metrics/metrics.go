// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsSubmitted counts accepted submissions by kind.
	TransactionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitbook_transactions_submitted_total",
		Help: "Transactions accepted by the reconciliation service, by kind.",
	}, []string{"kind"})

	// StateTransitions counts confirmation-workflow and archival actions.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitbook_state_transitions_total",
		Help: "Applied transaction state transitions, by action.",
	}, []string{"action"})

	// BalanceRecomputes counts full balance-sheet recomputations.
	BalanceRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitbook_balance_recomputes_total",
		Help: "Full balance sheet recomputations.",
	})

	// IntegrityErrors counts folds aborted by corrupt ledger data. Any
	// increase here indicates a bug, not bad user input.
	IntegrityErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitbook_integrity_errors_total",
		Help: "Balance recomputations aborted by a data integrity violation.",
	})

	// RecomputeDuration observes how long a full recompute takes; it must
	// stay cheap enough to run on every change notification.
	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "splitbook_balance_recompute_duration_seconds",
		Help:    "Duration of full balance sheet recomputations.",
		Buckets: prometheus.DefBuckets,
	})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "splitbook_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
