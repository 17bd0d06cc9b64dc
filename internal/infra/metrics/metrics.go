// Package metrics provides Prometheus metrics for the bridge:
// counters, gauges, and histograms for segments, tasks, callbacks,
// circuit breakers, and cleanup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Segments ───────────────────────────────────────────────────────────────

// SegmentsDispatched tracks segments sent to the provider, by mode
// (sync = inline result, async = correlation id).
var SegmentsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "segments_dispatched_total",
	Help:      "Total segments dispatched to the transcription provider.",
}, []string{"mode"})

// SegmentsCompleted tracks segments that reached a terminal state.
var SegmentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "segments_completed_total",
	Help:      "Total segments reaching a terminal state.",
}, []string{"status"})

// SegmentsReclaimed tracks stale processing segments reset for retry.
var SegmentsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "segments_reclaimed_total",
	Help:      "Total stale processing segments reclaimed for re-dispatch.",
})

// DispatchLatency tracks provider call duration in seconds.
var DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "bridge",
	Name:      "dispatch_latency_seconds",
	Help:      "Provider transcription call duration in seconds.",
	Buckets:   prometheus.DefBuckets,
})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCreated tracks submitted transcription tasks.
var TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "tasks_created_total",
	Help:      "Total transcription tasks created.",
})

// TasksFinalized tracks tasks reaching a terminal state.
var TasksFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "tasks_finalized_total",
	Help:      "Total tasks finalized, by outcome.",
}, []string{"status"})

// ─── Webhooks ───────────────────────────────────────────────────────────────

// CallbacksReceived tracks inbound provider callbacks by outcome
// (applied, duplicate, not_found).
var CallbacksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "callbacks_received_total",
	Help:      "Total provider callbacks received, by correlation outcome.",
}, []string{"outcome"})

// NotificationsSent tracks outbound client webhook deliveries.
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "notifications_sent_total",
	Help:      "Total client completion notifications, by delivery result.",
}, []string{"result"})

// ─── Circuit Breakers ───────────────────────────────────────────────────────

// BreakerState exposes each breaker's state (0=closed, 1=half-open, 2=open).
var BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "bridge",
	Name:      "breaker_state",
	Help:      "Circuit breaker state per dependency (0=closed, 1=half-open, 2=open).",
}, []string{"dependency"})

// BreakerRejections tracks fast-failed calls per dependency.
var BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "breaker_rejections_total",
	Help:      "Total calls rejected by an open circuit breaker.",
}, []string{"dependency"})

// ─── Cleanup ────────────────────────────────────────────────────────────────

// CleanupReleased tracks resources released by the cleanup service.
var CleanupReleased = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "cleanup_resources_released_total",
	Help:      "Total artifacts released by the cleanup service.",
})

// CleanupFailures tracks tasks whose cleanup exhausted its retries.
var CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bridge",
	Name:      "cleanup_failures_total",
	Help:      "Total tasks left for the next cleanup run after retry exhaustion.",
})
