// Package metrics defines the Prometheus collectors used by the document
// generator and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	BatchesTotal         *prometheus.CounterVec
	BatchDuration        prometheus.Histogram
	RowsTotal            *prometheus.CounterVec
	RowRenderDuration    prometheus.Histogram
	ArchiveBytes         prometheus.Histogram
	UploadBytes          prometheus.Histogram
	RateLimitedTotal     prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry that also carries the Go and process collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_batches_total",
				Help: "Generation batches by outcome (success, partial, input_error, render_failed).",
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_batch_duration_seconds",
				Help:    "Time to turn one uploaded table into an archive.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_rows_total",
				Help: "Rows processed by final state (archived, failed).",
			},
			[]string{"state"},
		),
		RowRenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_row_render_seconds",
				Help:    "Embed and render latency per row.",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		ArchiveBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_archive_bytes",
				Help:    "Size of generated archives.",
				Buckets: prometheus.ExponentialBuckets(4<<10, 4, 9),
			},
		),
		UploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_upload_bytes",
				Help:    "Size of uploaded tables.",
				Buckets: prometheus.ExponentialBuckets(1<<10, 4, 8),
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_events_published_total",
				Help: "Batch analytics events by publish status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	if reg == nil {
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = r
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.BatchesTotal,
		m.BatchDuration,
		m.RowsTotal,
		m.RowRenderDuration,
		m.ArchiveBytes,
		m.UploadBytes,
		m.RateLimitedTotal,
		m.EventsPublishedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
