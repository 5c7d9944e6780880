package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the Trivion quiz service.
//
// Naming convention: namespace_subsystem_name
// - namespace: trivion (application-level grouping)
// - subsystem: websocket, room, game, pubsub, circuit_breaker, rate_limit
// - name: specific metric (connections_active, rooms_active, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, members)
// - Counter: Cumulative events (answers submitted, errors)
// - Histogram: Latency distributions (answer submission latency)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trivion",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trivion",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomMembers tracks the number of members in each room, keyed by room code.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trivion",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_code"})

	// RoomPhaseTransitions tracks the total number of game phase transitions.
	RoomPhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "game",
		Name:      "phase_transitions_total",
		Help:      "Total game phase transitions",
	}, []string{"phase"})

	// AnswersSubmitted tracks the total number of answers submitted.
	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "game",
		Name:      "answers_submitted_total",
		Help:      "Total answers submitted",
	}, []string{"correct"})

	// WebsocketEvents tracks the total number of WebSocket events processed.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"tag", "status"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trivion",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"tag"})

	// CircuitBreakerState tracks the current state of the pub/sub forwarder's circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trivion",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// PubSubOperationsTotal tracks the total number of pub/sub forwarder operations.
	PubSubOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivion",
		Subsystem: "pubsub",
		Name:      "operations_total",
		Help:      "Total number of pub/sub forwarder operations",
	}, []string{"operation", "status"})

	// PubSubOperationDuration tracks the duration of pub/sub forwarder operations.
	PubSubOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trivion",
		Subsystem: "pubsub",
		Name:      "operation_duration_seconds",
		Help:      "Duration of pub/sub forwarder operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
