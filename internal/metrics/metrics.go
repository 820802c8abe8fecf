// Package metrics provides Prometheus instrumentation for the trading game.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts order attempts, partitioned by side and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradinggame_orders_total",
		Help: "Total number of orders processed",
	}, []string{"side", "result"})

	// OrderLatency tracks order execution latency, load to store.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradinggame_order_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ValuationsTotal counts valuation passes by outcome.
	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradinggame_valuations_total",
		Help: "Total number of portfolio valuation passes",
	}, []string{"result"})

	// LeaderboardUpdates counts ranking passes.
	LeaderboardUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradinggame_leaderboard_updates_total",
		Help: "Total number of leaderboard ranking passes",
	})

	// ActiveSessions tracks sessions that are open for trading.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradinggame_active_sessions",
		Help: "Number of currently active trading sessions",
	})

	// Participants counts enrollments.
	Participants = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradinggame_participants_total",
		Help: "Total number of participants enrolled",
	})

	// QuotesIngested counts quotes written into the quote book, by source.
	QuotesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradinggame_quotes_ingested_total",
		Help: "Total number of price quotes ingested",
	}, []string{"source"})

	// QuotesCorrupt counts stored quote entries that could not be decoded.
	QuotesCorrupt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradinggame_quotes_corrupt_total",
		Help: "Total number of stored quote entries that failed to decode",
	})

	// AuditEmitFailures counts audit events that a sink failed to deliver.
	AuditEmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradinggame_audit_emit_failures_total",
		Help: "Audit events that failed to emit",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradinggame_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradinggame_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradinggame_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
// The wrapped writer keeps http.Hijacker and http.Flusher, so WebSocket
// upgrades pass through it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		// Route pattern keeps the label set bounded (session and user ids are in the path).
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
