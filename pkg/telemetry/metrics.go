package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Lifecycle ───────────────────────────────────────────────────────────────

	LifecycleTasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "lifecycle",
		Name:      "tasks_created_total",
		Help:      "Total tasks created together with their creation history entry.",
	})

	LifecycleUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "lifecycle",
		Name:      "updates_total",
		Help:      "Task update attempts, labelled by outcome.",
	}, []string{"outcome"})

	LifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Committed status transitions, labelled by previous and new status.",
	}, []string{"from", "to"})

	LifecycleTxDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasktracker",
		Subsystem: "lifecycle",
		Name:      "transaction_duration_seconds",
		Help:      "Wall time of create/update transactions including connection wait.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	LifecycleEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "lifecycle",
		Name:      "events_published_total",
		Help:      "Lifecycle events handed to the event publisher, labelled by type and result.",
	}, []string{"type", "result"})

	// ─── API ─────────────────────────────────────────────────────────────────────

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Mutating requests rejected by the per-actor rate limiter.",
	})

	APICacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "api",
		Name:      "cache_lookups_total",
		Help:      "Task cache lookups, labelled by result (hit, miss, error).",
	}, []string{"result"})

	// ─── Projector ───────────────────────────────────────────────────────────────

	ProjectorEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "projector",
		Name:      "events_consumed_total",
		Help:      "Lifecycle events consumed, labelled by type.",
	}, []string{"type"})

	ProjectorHandlerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "projector",
		Name:      "handler_retries_total",
		Help:      "Retry attempts of event handlers.",
	}, []string{"type"})

	ProjectorDLQTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "projector",
		Name:      "dlq_total",
		Help:      "Events forwarded to the dead-letter topic.",
	}, []string{"type"})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerTasksByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tasktracker",
		Subsystem: "scheduler",
		Name:      "tasks_by_status",
		Help:      "Number of tasks currently in each status, refreshed by the leader.",
	}, []string{"status"})

	SchedulerSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasktracker",
		Subsystem: "scheduler",
		Name:      "snapshots_total",
		Help:      "Status snapshots taken, labelled by result.",
	}, []string{"result"})
)
