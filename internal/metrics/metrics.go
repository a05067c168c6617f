// Package metrics exposes composer counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the composer's collectors. A nil *Metrics is valid and
// records nothing, so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	writes         prometheus.Counter
	writeFailures  prometheus.Counter
	coalesced      prometheus.Counter
	exports        *prometheus.CounterVec
	reorders       *prometheus.CounterVec
	previewClients prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "composer_persist_writes_total",
			Help: "State writes that reached the backing store.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "composer_persist_write_failures_total",
			Help: "State writes the backing store rejected.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "composer_persist_saves_coalesced_total",
			Help: "Saves superseded by a later save before being written.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composer_exports_total",
			Help: "Generated HTML documents.",
		}, []string{"variant"}),
		reorders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composer_reorders_total",
			Help: "Committed reorders by input kind.",
		}, []string{"kind"}),
		previewClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "composer_preview_clients",
			Help: "Connected live preview websockets.",
		}),
	}
	m.registry.MustRegister(m.writes, m.writeFailures, m.coalesced, m.exports, m.reorders, m.previewClients)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for testing).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Write(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.writes.Inc()
	} else {
		m.writeFailures.Inc()
	}
}

func (m *Metrics) Coalesced() {
	if m != nil {
		m.coalesced.Inc()
	}
}

// Export counts a generated document; variant is "blocks" or "sections".
func (m *Metrics) Export(variant string) {
	if m != nil {
		m.exports.WithLabelValues(variant).Inc()
	}
}

// Reorder counts a committed move; kind is "drag" or "keyboard".
func (m *Metrics) Reorder(kind string) {
	if m != nil {
		m.reorders.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PreviewConnected() {
	if m != nil {
		m.previewClients.Inc()
	}
}

func (m *Metrics) PreviewDisconnected() {
	if m != nil {
		m.previewClients.Dec()
	}
}

// ExportCounter returns the export counter for variant (for testing).
func (m *Metrics) ExportCounter(variant string) prometheus.Counter {
	return m.exports.WithLabelValues(variant)
}
