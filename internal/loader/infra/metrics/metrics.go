// Package metrics records per-run sync metrics in a private Prometheus
// registry and exports them as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcomes used as label values.
const (
	OutcomeSynced    = "synced"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Recorder is what the sync services report to.
type Recorder interface {
	ObserveSync(outcome string, elapsed time.Duration)
	AddAttempt()
	AddRetry()
	AddEntries(added, removed int)
}

// Metrics is a Recorder backed by a dedicated registry, one per run.
type Metrics struct {
	registry *prometheus.Registry

	syncs    *prometheus.CounterVec
	attempts prometheus.Counter
	retries  prometheus.Counter
	entries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  prometheus.Gauge
}

// New builds and registers the run metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_loader_syncs_total",
				Help: "Blocklist syncs by outcome",
			},
			[]string{"outcome"},
		),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blocklist_loader_sync_attempts_total",
			Help: "Sync attempts including retries",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blocklist_loader_sync_retries_total",
			Help: "Sync attempts that were retried after a failure",
		}),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_loader_entries_total",
				Help: "Entry periods opened or closed",
			},
			[]string{"op"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blocklist_loader_sync_duration_seconds",
				Help:    "Wall time of one blocklist sync including retries",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"outcome"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blocklist_loader_last_run_timestamp_seconds",
			Help: "Unix time the run finished",
		}),
	}
	m.registry.MustRegister(m.syncs, m.attempts, m.retries, m.entries, m.duration, m.lastRun)
	return m
}

func (m *Metrics) ObserveSync(outcome string, elapsed time.Duration) {
	m.syncs.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) AddAttempt() { m.attempts.Inc() }

func (m *Metrics) AddRetry() { m.retries.Inc() }

func (m *Metrics) AddEntries(added, removed int) {
	m.entries.WithLabelValues("open").Add(float64(added))
	m.entries.WithLabelValues("close").Add(float64(removed))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile stamps the run end time and writes all metrics to path
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string, finished time.Time) error {
	m.lastRun.Set(float64(finished.Unix()))
	return prometheus.WriteToTextfile(path, m.registry)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveSync(string, time.Duration) {}
func (Nop) AddAttempt()                       {}
func (Nop) AddRetry()                         {}
func (Nop) AddEntries(int, int)               {}
