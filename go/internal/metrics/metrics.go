package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Countdown metrics
	CountdownsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_countdowns_started_total",
			Help: "Total number of team countdowns started",
		},
	)

	CountdownRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_countdown_restarts_total",
			Help: "Total number of countdowns restarted by a new bid",
		},
	)

	GroupsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_groups_running",
			Help: "Current number of groups with a running countdown",
		},
	)

	// Resolution metrics
	TeamsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_teams_resolved_total",
			Help: "Total number of teams resolved",
		},
		[]string{"status"}, // "sold", "unsold"
	)

	ResolutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_resolution_failures_total",
			Help: "Total number of abandoned resolutions or advances",
		},
		[]string{"stage"}, // "resolve", "pause", "advance"
	)

	// Scheduler metrics
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_scheduler_ticks_total",
			Help: "Total number of scheduler ticks",
		},
		[]string{"outcome"}, // "idle", "in_window", "error"
	)

	// WebSocket metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_websocket_messages_dropped_total",
			Help: "Total number of outbound WebSocket messages dropped",
		},
		[]string{"reason"}, // "broadcast_full", "send_full", "rate_limited"
	)

	// Event bus metrics
	EventBusPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_eventbus_publishes_total",
			Help: "Total number of events handed to JetStream by outcome",
		},
		[]string{"outcome"}, // "published", "failed", "dropped"
	)
)
