package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session pipeline counters, exposed on /metrics.
var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_sessions_created_total",
		Help: "Sessions created from QR scans.",
	})

	SessionsByOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_sessions_terminal_total",
		Help: "Sessions reaching a terminal state, by status.",
	}, []string{"status"})

	TransactionsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_transactions_matched_total",
		Help: "Transaction events matched to a session.",
	})

	TransfersEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_transfers_emitted_total",
		Help: "Reward transfer instructions handed to the payment sink.",
	})

	DuplicateTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_duplicate_triggers_total",
		Help: "Transition triggers ignored because the transition had already committed.",
	})
)
