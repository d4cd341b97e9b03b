package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_circuit_breaker_requests_total",
			Help: "Requests seen by a circuit breaker, by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobsync_circuit_breaker_consecutive_failures",
			Help: "Consecutive failures recorded by a circuit breaker",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Retry metrics
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_retry_attempts_total",
			Help: "Attempts made by the retry controller, by operation and outcome",
		},
		[]string{"operation", "outcome"}, // success, retry, overload, exhausted, permanent
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobsync_upstream_rate_limit_waits_total",
			Help: "Cooperative waits triggered by 429 responses",
		},
	)

	// Sync metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_sync_runs_total",
			Help: "Sync attempts by kind and status",
		},
		[]string{"kind", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobsync_sync_duration_seconds",
			Help:    "Duration of sync attempts",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"kind"},
	)

	ReconciledRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_reconciled_records_total",
			Help: "Job records touched by the reconciler, by action",
		},
		[]string{"action"}, // upserted, updated, expired, vanished, failed
	)
)
