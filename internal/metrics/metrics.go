// Package metrics exposes Prometheus collectors for the server and worker.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ispledger/internal/core"
)

const namespace = "ispledger"

// Metrics owns a private registry so tests and binaries never collide on
// the global one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	saves         *prometheus.CounterVec
	backups       *prometheus.CounterVec
	bridgeActions *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	clients       *prometheus.GaugeVec
	lastSave      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "saves_total",
			Help:      "Committed state mutations by operation.",
		}, []string{"op"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "uploads_total",
			Help:      "Backup uploads by target and result.",
		}, []string{"target", "result"}),
		bridgeActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "actions_total",
			Help:      "Host bridge actions by name and result.",
		}, []string{"action", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Dashboard cache lookups by result.",
		}, []string{"result"}),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Clients by state after the last save.",
		}, []string{"state"}),
		lastSave: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "last_save_timestamp_seconds",
			Help:      "Unix time of the last committed mutation.",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.saves, m.backups,
		m.bridgeActions, m.cacheLookups, m.clients, m.lastSave,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveSave has the signature of a store save hook.
func (m *Metrics) ObserveSave(_ context.Context, op string, st core.GlobalState) {
	m.saves.WithLabelValues(op).Inc()
	m.lastSave.SetToCurrentTime()

	var active, inactive, archived int
	for _, c := range st.Clients {
		switch {
		case c.IsArchived:
			archived++
		case c.IsActive:
			active++
		default:
			inactive++
		}
	}
	m.clients.WithLabelValues("active").Set(float64(active))
	m.clients.WithLabelValues("inactive").Set(float64(inactive))
	m.clients.WithLabelValues("archived").Set(float64(archived))
}

// ObserveBackup records the outcome of an upload to one target.
func (m *Metrics) ObserveBackup(target string, err error) {
	m.backups.WithLabelValues(target, result(err)).Inc()
}

func (m *Metrics) ObserveBridge(action string, err error) {
	m.bridgeActions.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	m.cacheLookups.WithLabelValues(label).Inc()
}
