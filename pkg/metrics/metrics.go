// Package metrics exposes Prometheus instruments for the voting lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VotesCast counts accepted votes.
	// Labels: choice (YES, NO)
	VotesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopvote",
			Subsystem: "voting",
			Name:      "votes_cast_total",
			Help:      "Total number of accepted votes",
		},
		[]string{"choice"},
	)

	// SessionsStarted counts voting sessions opened.
	// Labels: trigger (explicit, first_vote)
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopvote",
			Subsystem: "voting",
			Name:      "sessions_started_total",
			Help:      "Total number of voting sessions started",
		},
		[]string{"trigger"},
	)

	// AgendasFinalized counts agendas moved to FINISHED.
	// Labels: result (APPROVED, REJECTED, TIE, UNVOTED), trigger (timer, reconcile, read)
	AgendasFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopvote",
			Subsystem: "voting",
			Name:      "agendas_finalized_total",
			Help:      "Total number of agendas finalized",
		},
		[]string{"result", "trigger"},
	)

	// OperationsRejected counts operations refused with a domain error.
	// Labels: operation, kind
	OperationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopvote",
			Subsystem: "voting",
			Name:      "operations_rejected_total",
			Help:      "Total number of voting operations rejected by kind",
		},
		[]string{"operation", "kind"},
	)

	// PendingTimers is the number of scheduled session expiry timers.
	PendingTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coopvote",
			Subsystem: "timer",
			Name:      "pending",
			Help:      "Number of session expiry timers waiting to fire",
		},
	)

	// ReconcileDuration tracks how long expiry sweeps take.
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coopvote",
			Subsystem: "reconciler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expired-session sweeps in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
