// Package metrics exposes moonlive's Prometheus collectors.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "moonlive"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// so components can take one unconditionally.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	ConnectionSeconds prometheus.Histogram

	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
	PanicsTotal   *prometheus.CounterVec
	DiffBytes     prometheus.Histogram

	ModalRequests *prometheus.CounterVec

	DashboardFetches       *prometheus.CounterVec
	DashboardFetchDuration prometheus.Histogram
	DashboardCacheLookups  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Name: "connections_active",
			Help: "Live sockets currently connected.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Name: "connections_total",
			Help: "Live sockets accepted.",
		}),
		ConnectionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "connection_duration_seconds",
			Help:    "Lifetime of live sockets.",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600},
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "events_total",
			Help: "Client events handled, by component, event and status.",
		}, []string{"component", "event", "status"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "event_duration_seconds",
			Help:    "Time to handle a client event including the re-render.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"component"}),
		PanicsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "panics_total",
			Help: "Panics recovered in component handlers.",
		}, []string{"component"}),
		DiffBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "diff_bytes",
			Help:    "Size of diffs pushed to clients.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}),
		ModalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "modal_requests_total",
			Help: "Overlay requests raised from the sidebar, by modal type.",
		}, []string{"type"}),
		DashboardFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "dashboard_fetches_total",
			Help: "Dashboard list fetches against the Moonstream API, by result.",
		}, []string{"result"}),
		DashboardFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Name: "dashboard_fetch_duration_seconds",
			Help:    "Latency of dashboard list fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		DashboardCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: "dashboard_cache_lookups_total",
			Help: "Dashboard cache lookups, by hit or miss.",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.ConnectionSeconds,
		m.EventsTotal,
		m.EventDuration,
		m.PanicsTotal,
		m.DiffBytes,
		m.ModalRequests,
		m.DashboardFetches,
		m.DashboardFetchDuration,
		m.DashboardCacheLookups,
	)
	return m
}

// NewWithRuntime is New plus the Go runtime and process collectors.
func NewWithRuntime() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SocketOpened records an accepted live socket.
func (m *Metrics) SocketOpened(component string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// SocketClosed records the end of a live socket.
func (m *Metrics) SocketClosed(component string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
	m.ConnectionSeconds.Observe(lifetime.Seconds())
}

// EventHandled records a client event and its outcome. The router only
// passes event names the component declares.
func (m *Metrics) EventHandled(component, event string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	// WithLabelValues panics on invalid UTF-8
	event = strings.ToValidUTF8(event, "\uFFFD")
	m.EventsTotal.WithLabelValues(component, event, status).Inc()
	m.EventDuration.WithLabelValues(component).Observe(d.Seconds())
}

// PanicRecovered counts a recovered handler panic.
func (m *Metrics) PanicRecovered(component string) {
	if m == nil {
		return
	}
	m.PanicsTotal.WithLabelValues(component).Inc()
}

// DiffSent records the size of a pushed diff.
func (m *Metrics) DiffSent(component string, bytes int) {
	if m == nil {
		return
	}
	m.DiffBytes.Observe(float64(bytes))
}

// ModalRequested counts an overlay request.
func (m *Metrics) ModalRequested(modalType string) {
	if m == nil {
		return
	}
	m.ModalRequests.WithLabelValues(modalType).Inc()
}

// DashboardFetch records one API fetch. result is "ok" or "error".
func (m *Metrics) DashboardFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.DashboardFetches.WithLabelValues(result).Inc()
	m.DashboardFetchDuration.Observe(d.Seconds())
}

// DashboardCacheLookup records a cache peek.
func (m *Metrics) DashboardCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DashboardCacheLookups.WithLabelValues(result).Inc()
}
