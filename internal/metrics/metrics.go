package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventSub pipeline metrics
var (
	// CallbacksTotal tracks inbound EventSub callbacks by message type and outcome.
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_callbacks_total",
			Help: "Inbound EventSub callbacks by message type and outcome",
		},
		[]string{"message_type", "outcome"},
	)

	// VerificationFailuresTotal tracks rejected callbacks by reason.
	VerificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_verification_failures_total",
			Help: "Callbacks rejected during verification by reason (signature, stale_timestamp, unknown_subscription)",
		},
		[]string{"reason"},
	)

	// RedeliveriesTotal tracks callbacks Twitch flagged as redeliveries.
	RedeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_redeliveries_total",
			Help: "Callbacks carrying a nonzero retry counter",
		},
	)

	// DedupHitsTotal tracks duplicate short-circuits by layer (cache or store).
	DedupHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_dedup_hits_total",
			Help: "Duplicate callbacks short-circuited, by dedup layer",
		},
		[]string{"layer"},
	)

	// UnsupportedEventsTotal tracks notifications skipped by the normalizer.
	UnsupportedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_unsupported_events_total",
			Help: "Notifications with event types the normalizer does not support",
		},
		[]string{"event_type"},
	)

	// DispatchesTotal tracks bus publishes by status.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_dispatches_total",
			Help: "Normalized event publishes to the downstream bus by status",
		},
		[]string{"status"},
	)

	// DispatchSweepRecovered tracks deferred notifications recovered by the sweep.
	DispatchSweepRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_dispatch_sweep_recovered_total",
			Help: "Deferred notifications successfully re-published by the background sweep",
		},
	)

	// DispatchAbandonedTotal tracks notifications that exhausted dispatch attempts.
	// Alert on any increase: these events reached the store but never the bus.
	DispatchAbandonedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_dispatch_abandoned_total",
			Help: "Notifications that exhausted their dispatch attempts",
		},
	)

	// PipelineDuration tracks end-to-end callback processing latency.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsub_pipeline_duration_seconds",
			Help:    "Callback processing duration by message type",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"message_type"},
	)
)

// Redis operations metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
