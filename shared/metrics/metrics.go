package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of active HTTP requests",
		},
	)

	// Session store metrics
	SessionOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_store_operation_duration_seconds",
			Help:    "Duration of session store operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_errors_total",
			Help: "Total number of session store errors",
		},
		[]string{"operation"},
	)

	SessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions",
			Help: "Number of stored sessions by state, refreshed on stats requests",
		},
		[]string{"state"}, // total, active, impersonating, expired
	)

	// Impersonation metrics
	ImpersonationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impersonation_events_total",
			Help: "Total number of impersonation lifecycle events",
		},
		[]string{"event"}, // started, ended, rejected, reconciled, archived
	)

	ImpersonationOverdue = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "impersonation_overdue_detections_total",
			Help: "Times a session was validated while its impersonation exceeded the maximum duration",
		},
	)

	RestrictedActionBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impersonation_restricted_blocks_total",
			Help: "Requests blocked because the endpoint is restricted while impersonating",
		},
		[]string{"method"},
	)

	// Janitor metrics
	JanitorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_janitor_runs_total",
			Help: "Janitor task executions by outcome",
		},
		[]string{"task", "outcome"}, // outcome: ok, error, skipped
	)
)

// Timer observes an operation's duration when ObserveDuration is called.
type Timer struct {
	operation string
	start     time.Time
}

// TrackSessionOperation starts a timer for a session store operation
func TrackSessionOperation(operation string) *Timer {
	return &Timer{operation: operation, start: time.Now()}
}

// ObserveDuration records the elapsed time since the timer started
func (t *Timer) ObserveDuration() {
	SessionOperationDuration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
}

// TrackSessionError increments the error counter for an operation
func TrackSessionError(operation string) {
	SessionErrors.WithLabelValues(operation).Inc()
}
