// Package metrics declares every prometheus collector in one place. HTTP
// request metrics are not here: echoprometheus middleware provides
// http_requests_total and http_request_duration_seconds, and the error
// middleware owns http_errors_total.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redis
var (
	RedisOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_operations_total",
		Help: "Redis commands by command name and outcome.",
	}, []string{"operation", "status"})

	RedisOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Redis command latency.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_connection_errors_total",
		Help: "Failed Redis dials.",
	})

	CircuitBreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_state_changes_total",
		Help: "Circuit breaker transitions by component and entered state.",
	}, []string{"component", "state"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"component"})
)

// Realtime fan-out
var (
	BroadcasterActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcaster_active_sessions",
		Help: "Sessions with at least one connected client.",
	})

	BroadcasterConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcaster_connected_clients_total",
		Help: "Connected WebSocket clients across all sessions.",
	})

	BroadcasterSlowClientsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcaster_slow_clients_evicted_total",
		Help: "Clients dropped because their send buffer stayed full.",
	})

	BroadcasterPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcaster_panics_total",
		Help: "Panics recovered in the broadcaster loop.",
	})

	BroadcasterStopTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcaster_stop_timeouts_total",
		Help: "Broadcaster shutdowns that hit the drain timeout.",
	})

	PubSubMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pubsub_messages_received_total",
		Help: "Snapshot messages received from Redis pub/sub, by channel.",
	}, []string{"channel"})
)

// WebSocket connections
var (
	WebSocketConnectionsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_current",
		Help: "Open WebSocket connections.",
	})

	WebSocketConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_connections_total",
		Help: "WebSocket connection attempts by result: success, error or rejected.",
	}, []string{"result"})

	WebSocketMessageSendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "websocket_message_send_duration_seconds",
		Help:    "Time spent writing one message to a client.",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	})

	WebSocketPingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_ping_failures_total",
		Help: "Pings that failed to reach the client.",
	})

	WebSocketIdleDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_idle_disconnects_total",
		Help: "Connections closed for exceeding the idle timeout.",
	})

	WebSocketConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_connections_rejected_total",
		Help: "Rejected connection attempts by limit: rate_limit, per_ip_limit or global_limit.",
	}, []string{"reason"})
)

// Estimation
var (
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "votes_total",
		Help: "Votes processed by result: cast, revote, closed, unknown_card, rate_limited or error.",
	}, []string{"result"})

	RoundsRevealedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rounds_revealed_total",
		Help: "Voting rounds revealed.",
	})

	RoundAgreementTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "round_agreement_total",
		Help: "Revealed rounds by outcome: agreed or split.",
	}, []string{"outcome"})
)

// Sprint board
var (
	BoardMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "board_moves_total",
		Help: "Board moves by result: moved, not_on_board, invalid_column or error.",
	}, []string{"result"})

	BoardMoveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "board_move_duration_seconds",
		Help:    "Board move transaction latency.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
	})
)

// Orphan session cleanup
var (
	OrphanCleanupScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphan_cleanup_scans_total",
		Help: "Cleanup scans executed.",
	})

	OrphanCleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orphan_cleanup_duration_seconds",
		Help:    "Cleanup scan duration.",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30},
	})

	OrphanSessionsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphan_sessions_deleted_total",
		Help: "Abandoned sessions removed by cleanup.",
	})

	OrphanSessionsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orphan_sessions_skipped_total",
		Help: "Sessions the cleanup left alone, by reason: active or error.",
	}, []string{"reason"})
)

// Postgres
var (
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Query latency by query label.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"query"})

	DBErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_errors_total",
		Help: "Failed queries by query label.",
	}, []string{"query"})
)

// Instance coordination
var (
	LeaderElections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leader_elections_total",
		Help: "Elections this instance won, by lease key.",
	}, []string{"key"})

	IsLeader = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "is_leader",
		Help: "1 while this instance holds the lease for the given key.",
	}, []string{"key"})
)

// BuildInfo carries version metadata as labels; the value is always 1.
var BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "build_info",
	Help: "Build metadata: version, commit, build_time and go_version labels.",
}, []string{"version", "commit", "build_time", "go_version"})
