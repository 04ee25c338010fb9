package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negichat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "negichat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negichat_turns_total",
			Help: "Total conversation turns by outcome",
		},
		[]string{"outcome"}, // "ok", "invalid", "upstream", "timeout", "misconfigured"
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "negichat_turn_duration_seconds",
			Help:    "Time spent in the model call for one turn",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	// Session store metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "negichat_sessions_active",
			Help: "Sessions currently held in the server-side context store",
		},
	)

	SessionsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negichat_sessions_evicted_total",
			Help: "Sessions evicted from the server-side context store",
		},
		[]string{"reason"}, // "capacity" or "ttl"
	)

	RejectedOrigins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "negichat_rejected_origins_total",
			Help: "Requests rejected because their origin is not allow-listed",
		},
	)
)
