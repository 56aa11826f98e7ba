package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a price run.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	LinksTotal       *prometheus.CounterVec
	CheckpointWrites *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	CatalogRequests  *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescraper_requests_total",
			Help: "Shop page requests by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricescraper_request_duration_seconds",
			Help:    "Shop page request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	links := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescraper_links_total",
			Help: "Links brought to a terminal state, by result.",
		},
		[]string{"result"},
	)
	checkpoints := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescraper_checkpoint_writes_total",
			Help: "Checkpoint snapshot writes by result.",
		},
		[]string{"result"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescraper_fetch_errors_total",
			Help: "Shop page fetch errors by type.",
		},
		[]string{"error_type"},
	)
	catalog := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescraper_catalog_requests_total",
			Help: "Remote catalog calls by operation and result.",
		},
		[]string{"operation", "result"},
	)

	registry.MustRegister(requests, requestDuration, links, checkpoints, errorsTotal, catalog)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		LinksTotal:       links,
		CheckpointWrites: checkpoints,
		ErrorsTotal:      errorsTotal,
		CatalogRequests:  catalog,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a page request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncLink counts a link reaching a terminal state.
func (m *Metrics) IncLink(result string) {
	if m == nil {
		return
	}
	m.LinksTotal.WithLabelValues(result).Inc()
}

// IncCheckpoint counts a checkpoint write attempt.
func (m *Metrics) IncCheckpoint(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.CheckpointWrites.WithLabelValues(result).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCatalog counts a call to the remote catalog.
func (m *Metrics) IncCatalog(operation, result string) {
	if m == nil {
		return
	}
	m.CatalogRequests.WithLabelValues(operation, result).Inc()
}
