// Package metrics registers the service's Prometheus collectors and serves
// them on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service records into. A nil *Metrics is
// valid and records nothing, so tests can skip wiring it.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	bookings      prometheus.Counter
	transitions   *prometheus.CounterVec
	ratings       prometheus.Counter
	notifications *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	cacheLookups  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medibook",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "appointments_booked_total",
			Help:      "Appointments created in pending state.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "appointment_transitions_total",
			Help:      "Applied appointment status transitions.",
		}, []string{"from", "to"}),
		ratings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "ratings_submitted_total",
			Help:      "Ratings applied to completed appointments.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome.",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medibook",
			Name:      "notification_queue_depth",
			Help:      "Notifications waiting for a worker.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Name:      "directory_cache_lookups_total",
			Help:      "Doctor directory cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.bookings, m.transitions, m.ratings,
		m.notifications, m.queueDepth, m.cacheLookups,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Booked() {
	if m == nil {
		return
	}
	m.bookings.Inc()
}

func (m *Metrics) Transitioned(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Rated() {
	if m == nil {
		return
	}
	m.ratings.Inc()
}

// Notification records a delivery outcome: "sent", "failed" or "dropped".
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// CacheLookup records "hit", "miss" or "error".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency keyed by the matched route
// pattern, never the raw path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
