// Package observability collects Prometheus metrics for the API and the
// realtime fan-out layer.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the application's Prometheus collectors.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sessionsConnected prometheus.Gauge
	eventsPublished   prometheus.Counter
	eventsDropped     prometheus.Counter
}

// NewMetrics initializes the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskpulse_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskpulse_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskpulse_realtime_sessions",
		Help: "Currently connected realtime sessions.",
	})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_realtime_events_published_total",
		Help: "Events enqueued for delivery to a room member.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_realtime_events_dropped_total",
		Help: "Events dropped because a member was unreachable.",
	})
	registry.MustRegister(requests, duration, sessions, published, dropped)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		sessionsConnected: sessions,
		eventsPublished:   published,
		eventsDropped:     dropped,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SessionConnected implements realtime.Metrics.
func (m *Metrics) SessionConnected() {
	if m != nil {
		m.sessionsConnected.Inc()
	}
}

// SessionDisconnected implements realtime.Metrics.
func (m *Metrics) SessionDisconnected() {
	if m != nil {
		m.sessionsConnected.Dec()
	}
}

// EventPublished implements realtime.Metrics.
func (m *Metrics) EventPublished() {
	if m != nil {
		m.eventsPublished.Inc()
	}
}

// EventDropped implements realtime.Metrics.
func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
