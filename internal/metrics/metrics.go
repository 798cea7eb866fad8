package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_emails_total",
			Help: "Inbound emails by processing outcome",
		},
		[]string{"outcome"}, // graded, unsolicited, duplicate, invalid_transition
	)

	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempts_started_total",
			Help: "Practice attempts created, by scenario",
		},
		[]string{"scenario"},
	)

	GradingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_failures_total",
			Help: "Grading oracle calls that errored or returned malformed data",
		},
	)

	WatchRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watch_renewals_total",
			Help: "Mail watch renewal attempts by result",
		},
		[]string{"result"}, // renewed, failed, skipped
	)
)
