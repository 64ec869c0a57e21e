package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionOpens counts open transitions, including reopens.
	SessionOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_session_opens_total",
		Help: "Sessions opened for check-in.",
	})

	// SessionCloses counts close transitions, including idempotent ones.
	SessionCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_session_closes_total",
		Help: "Sessions closed.",
	})

	// CheckinsAccepted counts stored attendance records by classification.
	CheckinsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkins_accepted_total",
		Help: "Accepted check-ins by status.",
	}, []string{"status"})

	// CheckinsRejected counts rejected attempts by failing admission check.
	CheckinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkins_rejected_total",
		Help: "Rejected check-ins by reason.",
	}, []string{"reason"})

	// ReportCacheHits counts class-report cache hits and misses.
	ReportCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_report_cache_total",
		Help: "Class report cache lookups by outcome.",
	}, []string{"outcome"})
)
