// Package metrics provides Prometheus instrumentation for Traceline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics.
var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "traceline_connections_active",
		Help: "Number of active WebSocket session connections.",
	})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceline_reconnects_total",
		Help: "Total number of reconnection attempts.",
	})

	DemoFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceline_demo_fallbacks_total",
		Help: "Total number of sessions served by the demo fallback responder.",
	})
)

// Protocol metrics.
var (
	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceline_messages_sent_total",
		Help: "Total outbound protocol messages by type.",
	}, []string{"type"})

	EventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceline_events_received_total",
		Help: "Total inbound protocol events by type.",
	}, []string{"type"})

	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceline_decode_errors_total",
		Help: "Total inbound frames dropped as malformed.",
	})

	PermissionDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceline_permission_decisions_total",
		Help: "Total permission decisions by choice.",
	}, []string{"choice"})
)

// HTTP metrics, recorded by HTTPMiddleware on the serve side.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceline_http_requests_total",
		Help: "Total HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traceline_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Serve-side agent metrics.
var (
	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "traceline_active_agents",
		Help: "Number of currently running agent processes.",
	})

	AgentTurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traceline_agent_turns_total",
		Help: "Total agent turns executed.",
	})

	AgentTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "traceline_agent_turn_duration_seconds",
		Help:    "Agent turn duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
