package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's instrumentation on a private registry so tests
// can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	TenantResolutions *prometheus.CounterVec
	AuditRecords      *prometheus.CounterVec
	OutboxDispatched  prometheus.Counter
	OutboxDead        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TenantResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_resolutions_total",
				Help: "Tenant resolution outcomes by source",
			},
			[]string{"source"},
		),
		AuditRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_records_written_total",
				Help: "Audit records written by event kind",
			},
			[]string{"event"},
		),
		OutboxDispatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outbox_events_dispatched_total",
				Help: "Outbox events successfully dispatched",
			},
		),
		OutboxDead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outbox_events_dead_total",
				Help: "Outbox events moved to the dead-letter state",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.TenantResolutions,
		m.AuditRecords,
		m.OutboxDispatched,
		m.OutboxDead,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments a chi route tree. The route pattern keeps the path
// label bounded; raw URLs would blow up cardinality.
func (m *Metrics) Middleware(routePattern func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := routePattern(r)
			m.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
