// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Body size buckets, 64 B to 16 MiB.
var sizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

// Metrics holds all Prometheus metric collectors for the bridge.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	Translations      *prometheus.CounterVec
	TranslationErrors *prometheus.CounterVec
	BodyBytes         *prometheus.HistogramVec

	LocalTasks     *prometheus.CounterVec
	SchedulerQueue prometheus.Gauge

	OriginDuration  *prometheus.HistogramVec
	OriginResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_bridge_http_requests_total",
			Help: "Total requests served by the framework.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_bridge_http_request_duration_seconds",
			Help:    "Framework handling latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_bridge_http_requests_in_flight",
			Help: "Number of requests currently inside the framework.",
		}),

		Translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_bridge_translations_total",
			Help: "Host/framework translations by direction and result.",
		}, []string{"direction", "result"}),

		TranslationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_bridge_translation_errors_total",
			Help: "Failed translations by direction and error kind.",
		}, []string{"direction", "kind"}),

		BodyBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_bridge_body_bytes",
			Help:    "Size of bodies buffered during translation.",
			Buckets: sizeBuckets,
		}, []string{"direction"}),

		LocalTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_bridge_local_tasks_total",
			Help: "Scheduler-bound handler bodies by outcome.",
		}, []string{"outcome"}),

		SchedulerQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_bridge_scheduler_queue_depth",
			Help: "Tasks waiting on the host scheduler.",
		}),

		OriginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_bridge_origin_request_duration_seconds",
			Help:    "Origin fetch latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		OriginResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_bridge_origin_responses_total",
			Help: "Total origin responses by method and status code.",
		}, []string{"method", "status_code"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.Translations,
		m.TranslationErrors,
		m.BodyBytes,
		m.LocalTasks,
		m.SchedulerQueue,
		m.OriginDuration,
		m.OriginResponses,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/healthz", "/status", "/metrics"}

// NormalizePath returns a bounded path label. Everything not in knownPrefixes
// is origin traffic.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "origin"
}
