package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check-in engine counters, exposed on /metrics.
var (
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_sessions_opened_total",
		Help: "Check-in sessions opened.",
	})

	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_sessions_closed_total",
		Help: "Check-in sessions closed by the reconciler.",
	})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_registrations_total",
		Help: "Accepted attendance registrations by status.",
	}, []string{"status"})

	AbsenteesMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_absentees_marked_total",
		Help: "Students bulk-marked absent at session close.",
	})
)
