package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics, shared by the API server and the web companion
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Server-side authentication outcomes
	AuthOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total number of authentication operations by outcome",
		},
		[]string{"operation", "result"},
	)

	// Client-side session metrics
	ClientAuthChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_auth_changes_total",
			Help: "Total number of published session state transitions",
		},
		[]string{"state"},
	)

	ClientTokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_token_refresh_total",
			Help: "Total number of token refresh attempts by result",
		},
		[]string{"result"},
	)

	ClientAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_api_requests_total",
			Help: "Total number of backend requests made by the session client",
		},
		[]string{"endpoint", "outcome"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active auth event WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of messages sent via WebSocket",
		},
		[]string{"type"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)
)
