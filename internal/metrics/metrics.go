// Package metrics wraps the Prometheus collectors exposed by the directory
// service: HTTP traffic plus the domain counters for profile bootstrap,
// moderation, uploads and backend retries.
//
// All Record methods are safe on a nil *Metrics so callers can treat
// metrics as optional.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bootstrap outcomes.
const (
	BootstrapFound    = "found"
	BootstrapCreated  = "created"
	BootstrapConflict = "conflict"
	BootstrapFailed   = "failed"
)

// Metrics holds the service collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	profileBootstraps *prometheus.CounterVec
	moderationActions *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	uploadBytes       *prometheus.CounterVec
	backendRetries    *prometheus.CounterVec
	circuitState      prometheus.Gauge
	cacheLookups      *prometheus.CounterVec
}

// New creates collectors under namespace and registers them, together with
// the process and Go runtime collectors, in a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "directory"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"service", "method", "path", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"service", "method", "path"})

	m.profileBootstraps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "profile",
		Name:      "bootstraps_total",
		Help:      "Profile loads by outcome (found, created, conflict, failed).",
	}, []string{"outcome"})
	m.moderationActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "actions_total",
		Help:      "Admin status actions by entity kind, action and result.",
	}, []string{"kind", "action", "result"})
	m.uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "uploads_total",
		Help:      "Onboarding uploads by bucket and result.",
	}, []string{"bucket", "result"})
	m.uploadBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "upload_bytes_total",
		Help:      "Bytes successfully uploaded by bucket.",
	}, []string{"bucket"})
	m.backendRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "retries_total",
		Help:      "Retried backend requests by method and reason.",
	}, []string{"method", "reason"})
	m.circuitState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "circuit_state",
		Help:      "Backend circuit breaker state (0=closed, 1=open, 2=half-open).",
	})
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Profile cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.profileBootstraps,
		m.moderationActions,
		m.uploads,
		m.uploadBytes,
		m.backendRetries,
		m.circuitState,
		m.cacheLookups,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() {
	if m != nil {
		m.httpInFlight.Inc()
	}
}

func (m *Metrics) DecrementInFlight() {
	if m != nil {
		m.httpInFlight.Dec()
	}
}

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordBootstrap counts a profile load outcome.
func (m *Metrics) RecordBootstrap(outcome string) {
	if m != nil {
		m.profileBootstraps.WithLabelValues(outcome).Inc()
	}
}

// RecordModeration counts an admin action.
func (m *Metrics) RecordModeration(kind, action string, success bool) {
	if m != nil {
		m.moderationActions.WithLabelValues(kind, action, result(success)).Inc()
	}
}

// RecordUpload counts an upload attempt and, on success, its size.
func (m *Metrics) RecordUpload(bucket string, size int64, success bool) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(bucket, result(success)).Inc()
	if success && size > 0 {
		m.uploadBytes.WithLabelValues(bucket).Add(float64(size))
	}
}

// RecordRetry counts a retried backend request.
func (m *Metrics) RecordRetry(method, reason string) {
	if m != nil {
		m.backendRetries.WithLabelValues(method, reason).Inc()
	}
}

// SetCircuitState publishes the breaker state as a number.
func (m *Metrics) SetCircuitState(state int) {
	if m != nil {
		m.circuitState.Set(float64(state))
	}
}

// RecordCacheLookup counts a cache hit, miss or error.
func (m *Metrics) RecordCacheLookup(res string) {
	if m != nil {
		m.cacheLookups.WithLabelValues(res).Inc()
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
