// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cogd"

var (
	// ControllerOps counts controller operations.
	// Labels: record (record type), op, result (ok, not_found, error)
	ControllerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "operations_total",
			Help:      "Total number of controller operations",
		},
		[]string{"record", "op", "result"},
	)

	// ControllerDuration tracks controller operation latency.
	ControllerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "operation_duration_seconds",
			Help:      "Duration of controller operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"record", "op"},
	)

	// TxBeginRetries counts transaction acquisitions that needed the retry.
	TxBeginRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "tx_begin_retries_total",
			Help:      "Total number of transaction begins retried after contention",
		},
	)

	// ModuleTransitions counts lifecycle transitions.
	// Labels: op (load, unload, reload), result (ok, failed)
	ModuleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modules",
			Name:      "transitions_total",
			Help:      "Total number of module lifecycle operations",
		},
		[]string{"op", "result"},
	)

	// ModulesByState tracks how many modules are in each state.
	ModulesByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "modules",
			Name:      "state",
			Help:      "Number of tracked modules by lifecycle state",
		},
		[]string{"state"},
	)

	// EventsDelivered counts events accepted by the dispatcher.
	EventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Total number of events delivered to the dispatcher",
		},
	)

	// EventsUnrouted counts events no handler was registered for.
	EventsUnrouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_unrouted_total",
			Help:      "Total number of events with no registered handler",
		},
	)

	// HandlerInvocations counts handler runs.
	// Labels: event, result (ok, error, panic)
	HandlerInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_invocations_total",
			Help:      "Total number of handler invocations",
		},
		[]string{"event", "result"},
	)

	// HandlerDuration tracks handler latency.
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Duration of handler invocations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// QueueDepth is the number of events waiting for dispatch.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Number of events waiting for dispatch",
		},
	)
)

// ObserveController records one controller operation.
func ObserveController(record, op, result string, start time.Time) {
	ControllerOps.WithLabelValues(record, op, result).Inc()
	ControllerDuration.WithLabelValues(record, op).Observe(time.Since(start).Seconds())
}

// SetModuleStates replaces the per-state module gauge.
func SetModuleStates(counts map[string]int) {
	ModulesByState.Reset()
	for state, n := range counts {
		ModulesByState.WithLabelValues(state).Set(float64(n))
	}
}
