// Package metrics holds the Prometheus collectors for crmq.
//
// All methods are safe on a nil *Metrics so callers can treat metrics as
// optional.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crmq"

// Metrics is a private registry plus the collectors registered on it.
type Metrics struct {
	registry      *prometheus.Registry
	pageRequests  *prometheus.CounterVec
	pageDuration  *prometheus.HistogramVec
	overlayLookup *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	staleCycles   *prometheus.CounterVec
	exportedRows  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "primary_page_requests_total",
			Help:      "Primary API page requests by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "primary_request_seconds",
			Help:      "Primary API request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		overlayLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_lookups_total",
			Help:      "Batched overlay lookups by table.",
		}, []string{"table"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Local mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		staleCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_cycles_total",
			Help:      "Fetch results discarded because a newer cycle was issued.",
		}, []string{"dataset"}),
		exportedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_rows_total",
			Help:      "Rows written by exports by dataset.",
		}, []string{"dataset"}),
	}
	m.registry.MustRegister(
		m.pageRequests,
		m.pageDuration,
		m.overlayLookup,
		m.mutations,
		m.staleCycles,
		m.exportedRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PageRequest counts one primary page request.
func (m *Metrics) PageRequest(dataset string, err error) {
	if m == nil {
		return
	}
	m.pageRequests.WithLabelValues(dataset, outcome(err)).Inc()
}

// ObserveRequest records the latency of one primary API call.
func (m *Metrics) ObserveRequest(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.pageDuration.WithLabelValues(endpoint).Observe(seconds)
}

// OverlayLookup counts one batched lookup against an overlay table.
func (m *Metrics) OverlayLookup(table string) {
	if m == nil {
		return
	}
	m.overlayLookup.WithLabelValues(table).Inc()
}

// Mutation counts one local mutation.
func (m *Metrics) Mutation(kind string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome(err)).Inc()
}

// StaleCycle counts one discarded fetch result.
func (m *Metrics) StaleCycle(dataset string) {
	if m == nil {
		return
	}
	m.staleCycles.WithLabelValues(dataset).Inc()
}

// ExportedRows adds n exported rows.
func (m *Metrics) ExportedRows(dataset string, n int) {
	if m == nil {
		return
	}
	m.exportedRows.WithLabelValues(dataset).Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
