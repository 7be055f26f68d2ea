package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted tracks jobs accepted per queue and type
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
		[]string{"queue", "job_type"},
	)

	// JobsCompleted tracks jobs finished per queue and final status
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"queue", "status"},
	)

	// JobDuration tracks end-to-end processing time per queue
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"queue"},
	)

	// QueueDepth tracks pending jobs per queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of jobs waiting in the queue",
		},
		[]string{"queue"},
	)

	// RetriesScheduled tracks scheduled retries per queue and category
	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_retries_scheduled_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"queue", "category"},
	)

	// DLQEntries tracks jobs routed to the dead letter queue
	DLQEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_dlq_entries_total",
			Help: "Total number of jobs sent to the dead letter queue",
		},
		[]string{"queue", "category"},
	)

	// DLQDepth tracks current dead letter queue size
	DLQDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_dlq_depth",
			Help: "Number of entries in the dead letter queue",
		},
		[]string{"queue"},
	)

	// BreakerState exposes circuit breaker state per service
	// (0=closed, 1=half-open, 2=open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	// BreakerRejections tracks requests rejected by open breakers
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_circuit_breaker_rejections_total",
			Help: "Total number of requests rejected by an open circuit breaker",
		},
		[]string{"service"},
	)

	// ActiveWorkers tracks running workers per queue
	ActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_active_workers",
			Help: "Number of active workers",
		},
		[]string{"queue"},
	)

	// WorkerRestarts tracks failed workers replaced by the pool
	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_worker_restarts_total",
			Help: "Total number of worker restarts",
		},
		[]string{"queue"},
	)

	// CollabRequests tracks downstream service calls
	CollabRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_collaborator_requests_total",
			Help: "Total number of downstream service calls",
		},
		[]string{"service", "outcome"},
	)

	// CollabLatency tracks downstream call latency
	CollabLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_collaborator_latency_seconds",
			Help:    "Downstream service call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

// BreakerStateValue converts a breaker state string to its gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 2
	case "HALF_OPEN":
		return 1
	default:
		return 0
	}
}
