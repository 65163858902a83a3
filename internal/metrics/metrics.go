// Package metrics registers the Prometheus collectors for the importer.
// Everything hangs off a private registry so tests can build isolated
// instances without collector name collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service records to.
type Metrics struct {
	registry *prometheus.Registry

	ImportsStarted   prometheus.Counter
	ImportsCompleted *prometheus.CounterVec
	ImportDuration   prometheus.Histogram
	RowsProcessed    prometheus.Counter

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	WebhookDeliveries *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ImportsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "import_jobs_started_total",
		Help: "Import jobs accepted for processing",
	})
	m.ImportsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_jobs_finished_total",
		Help: "Import jobs that reached a terminal status",
	}, []string{"status"})
	m.ImportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "import_job_duration_seconds",
		Help:    "Wall time of successful import jobs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	})
	m.RowsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "import_rows_processed_total",
		Help: "CSV data rows run through the upsert pipeline",
	})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status"})
	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	m.WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome",
	}, []string{"event", "outcome"})

	m.registry.MustRegister(
		m.ImportsStarted,
		m.ImportsCompleted,
		m.ImportDuration,
		m.RowsProcessed,
		m.HTTPRequests,
		m.HTTPDuration,
		m.WebhookDeliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
