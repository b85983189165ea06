// Package metrics provides Prometheus instrumentation for the
// contracts engine, renamed from the teacher's LMSR-specific counters to
// the order book's own lifecycle: orders placed/canceled, trades
// matched, settlements run, and the usual HTTP/WebSocket ambient
// gauges.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts orders accepted by the engine, partitioned by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contracts_orders_total",
		Help: "Total number of orders placed",
	}, []string{"side"})

	// TradesTotal counts trades matched, partitioned by taker side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contracts_trades_total",
		Help: "Total number of trades matched",
	}, []string{"side"})

	// OrderLatency tracks PlaceOrder command latency.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contracts_order_latency_seconds",
		Help:    "PlaceOrder command latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// CancelsTotal counts successful order cancellations.
	CancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contracts_cancels_total",
		Help: "Total number of orders canceled",
	})

	// SettlementsTotal counts markets settled.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contracts_settlements_total",
		Help: "Total number of markets settled",
	})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contracts_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contracts_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contracts_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contracts_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RiskLimitRejections counts orders rejected by the risk limiter.
	RiskLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contracts_risk_limit_rejections_total",
		Help: "Orders rejected by the risk limiter",
	})

	// MarketVolume tracks cumulative matched volume per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contracts_market_volume_total",
		Help: "Cumulative matched volume in contracts",
	}, []string{"market_id", "side"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
