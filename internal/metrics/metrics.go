// Package metrics counts what each pipeline stage did. A run owns one
// registry; the textfile export is meant for node_exporter's textfile
// collector on hosts that run iptvsift from cron.
//
// All record methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the per-run collector set.
type Metrics struct {
	reg *prometheus.Registry

	sources       *prometheus.CounterVec
	records       *prometheus.CounterVec
	validations   *prometheus.CounterVec
	probeSteps    *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	urlsKept      prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		sources: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptvsift_sources_total",
			Help: "Sources processed, by outcome.",
		}, []string{"result"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptvsift_records_total",
			Help: "Channel records seen, by pipeline stage.",
		}, []string{"stage"}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptvsift_validations_total",
			Help: "Stream URL validations, by final state.",
		}, []string{"state"}),
		probeSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptvsift_probe_steps_total",
			Help: "Probe ladder steps run, by step and outcome.",
		}, []string{"step", "outcome"}),
		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptvsift_cache_events_total",
			Help: "Content cache events.",
		}, []string{"event"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iptvsift_stage_duration_seconds",
			Help:    "Wall time per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		urlsKept: f.NewGauge(prometheus.GaugeOpts{
			Name: "iptvsift_urls_kept",
			Help: "URLs written to the output playlists.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Source(result string) {
	if m != nil {
		m.sources.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Records(stage string, n int) {
	if m != nil && n > 0 {
		m.records.WithLabelValues(stage).Add(float64(n))
	}
}

func (m *Metrics) Validation(state string) {
	if m != nil {
		m.validations.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ProbeStep(step, outcome string) {
	if m != nil {
		m.probeSteps.WithLabelValues(step, outcome).Inc()
	}
}

func (m *Metrics) CacheEvent(event string) {
	if m != nil {
		m.cacheEvents.WithLabelValues(event).Inc()
	}
}

// Stage records the time since start under stage.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m != nil {
		m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SetURLsKept(n int) {
	if m != nil {
		m.urlsKept.Set(float64(n))
	}
}

// WriteTextfile writes the registry in text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
