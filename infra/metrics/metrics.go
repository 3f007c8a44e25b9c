package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gohuifu"

var (
	// GatewayRequests counts dispatched gateway operations by outcome
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway operations",
		},
		[]string{"gateway", "operation", "outcome"},
	)

	// GatewayDuration observes gateway round trips
	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"gateway", "operation"},
	)

	// Callbacks counts inbound notifications by final state
	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "callback",
			Name:      "notifications_total",
			Help:      "Total number of inbound notifications",
		},
		[]string{"gateway", "state", "ack"},
	)

	// VerifyStrategies counts which canonicalization verified a signature
	VerifyStrategies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "callback",
			Name:      "verify_strategy_total",
			Help:      "Signature verifications by winning strategy",
		},
		[]string{"gateway", "strategy"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// ObserveGateway records one dispatched operation
func ObserveGateway(gateway, operation, outcome string, d time.Duration) {
	GatewayRequests.WithLabelValues(gateway, operation, outcome).Inc()
	GatewayDuration.WithLabelValues(gateway, operation).Observe(d.Seconds())
}

// ObserveCallback records one inbound notification
func ObserveCallback(gateway, state, ack, strategy string) {
	Callbacks.WithLabelValues(gateway, state, ack).Inc()
	if strategy != "" {
		VerifyStrategies.WithLabelValues(gateway, strategy).Inc()
	}
}

// Middleware counts HTTP requests by route pattern and status
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(status)).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
