// Package metrics holds the Prometheus instruments of runs and translators.
//
// Each run gets its own registry, written once as a node_exporter textfile
// (log/orchestrator.prom) when the run finishes; translator workers write
// their own file next to it. There is no scrape endpoint. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cosim"

// Metrics groups the instruments of one process.
type Metrics struct {
	reg *prometheus.Registry

	// WindowsTotal counts translated windows. Labels: direction.
	WindowsTotal *prometheus.CounterVec

	// EventsTotal counts spike events consumed or produced. Labels: direction.
	EventsTotal *prometheus.CounterVec

	// WindowSeconds measures wall time per window, receive to send. Labels: direction.
	WindowSeconds *prometheus.HistogramVec

	// TranslationErrorsTotal counts failed pipelines. Labels: direction.
	TranslationErrorsTotal *prometheus.CounterVec

	// HandshakeSeconds measures how long Connect waited. Labels: role kind.
	HandshakeSeconds *prometheus.HistogramVec

	// ProcessExitsTotal counts supervised process exits. Labels: process, outcome.
	ProcessExitsTotal *prometheus.CounterVec

	// RunsTotal counts finished runs. Labels: status.
	RunsTotal *prometheus.CounterVec

	// RunSeconds measures run wall time.
	RunSeconds prometheus.Histogram
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		WindowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "translation",
			Name:      "windows_total",
			Help:      "Synchronization windows translated.",
		}, []string{"direction"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "translation",
			Name:      "events_total",
			Help:      "Spike events consumed or generated.",
		}, []string{"direction"}),
		WindowSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "translation",
			Name:      "window_seconds",
			Help:      "Wall time spent on one window.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"direction"}),
		TranslationErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "translation",
			Name:      "errors_total",
			Help:      "Pipelines that ended in FAILED.",
		}, []string{"direction"}),
		HandshakeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a peer descriptor.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 3, 10),
		}, []string{"role"}),
		ProcessExitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "process_exits_total",
			Help:      "Supervised process exits.",
		}, []string{"process", "outcome"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "finished_total",
			Help:      "Runs finished, by status.",
		}, []string{"status"}),
		RunSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of a run.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
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

// ObserveWindow records one translated window.
func (m *Metrics) ObserveWindow(direction string, events int, d time.Duration) {
	if m == nil {
		return
	}
	m.WindowsTotal.WithLabelValues(direction).Inc()
	m.EventsTotal.WithLabelValues(direction).Add(float64(events))
	m.WindowSeconds.WithLabelValues(direction).Observe(d.Seconds())
}

// TranslationFailed counts a pipeline failure.
func (m *Metrics) TranslationFailed(direction string) {
	if m == nil {
		return
	}
	m.TranslationErrorsTotal.WithLabelValues(direction).Inc()
}

// ObserveHandshake records a Connect wait.
func (m *Metrics) ObserveHandshake(role string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandshakeSeconds.WithLabelValues(role).Observe(d.Seconds())
}

// ProcessExited counts one process exit. outcome is "ok", "failed" or "killed".
func (m *Metrics) ProcessExited(process, outcome string) {
	if m == nil {
		return
	}
	m.ProcessExitsTotal.WithLabelValues(process, outcome).Inc()
}

// RunFinished records a run's outcome.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunSeconds.Observe(d.Seconds())
}

// WriteTextfile writes the registry in text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
