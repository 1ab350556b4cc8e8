package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	sessions      *prometheus.CounterVec
	scans         *prometheus.CounterVec
	LiveListeners prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presqr_sessions_generated_total",
			Help: "Attendance session generation requests by outcome (created, reused).",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presqr_scans_total",
			Help: "Scan attempts by outcome.",
		}, []string{"outcome"}),
		LiveListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presqr_live_listeners",
			Help: "Open lecturer live-update channels.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessions,
		m.scans,
		m.LiveListeners,
	)
	return m
}

// SessionGenerated counts one generate request
func (m *Metrics) SessionGenerated(reused bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if reused {
		outcome = "reused"
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// ScanAttempted counts one scan attempt under the given outcome label
func (m *Metrics) ScanAttempted(outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
