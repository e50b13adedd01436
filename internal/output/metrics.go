/*
PURPOSE:
  Prometheus counters for a sweep, written as a node_exporter textfile.

ARCHITECTURE INTEGRATION:
  - Registered as an engine.Recorder by internal/cli/sweep.go.

ERROR HANDLING:
  - Textfile write errors are returned; the runner only logs them.

USAGE:
  m := output.NewMetrics("/var/lib/node_exporter/bench_sweep.prom", "GROK2")
*/

package output

import (
	"github.com/daryltucker/bench-sweep/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks sweep counters in a private Prometheus registry and, when a
// path is set, rewrites it in node_exporter textfile format after every
// update so a collector can pick up progress of a long sweep.
type Metrics struct {
	path     string
	model    string
	registry *prometheus.Registry

	attempts *prometheus.CounterVec
	skipped  prometheus.Counter
	duration prometheus.Histogram
	last     prometheus.Gauge
}

// NewMetrics creates the collectors for one model's sweep.
func NewMetrics(path, model string) *Metrics {
	m := &Metrics{
		path:     path,
		model:    model,
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bench_sweep_attempts_total",
			Help:        "Benchmark invocations attempted, by outcome.",
			ConstLabels: prometheus.Labels{"model": model},
		}, []string{"status"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bench_sweep_skipped_total",
			Help:        "Combinations skipped because the completion log lists them.",
			ConstLabels: prometheus.Labels{"model": model},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "bench_sweep_run_duration_seconds",
			Help:        "Wall time of each benchmark invocation.",
			ConstLabels: prometheus.Labels{"model": model},
			Buckets:     prometheus.ExponentialBuckets(1, 2, 14),
		}),
		last: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "bench_sweep_last_attempt_timestamp_seconds",
			Help:        "Unix time the most recent invocation finished.",
			ConstLabels: prometheus.Labels{"model": model},
		}),
	}
	m.registry.MustRegister(m.attempts, m.skipped, m.duration, m.last)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Write records a finished attempt.
func (m *Metrics) Write(a model.Attempt) error {
	m.attempts.WithLabelValues(string(a.Status)).Inc()
	m.duration.Observe(a.Duration.Seconds())
	m.last.Set(float64(a.Timestamp.Add(a.Duration).Unix()))
	return m.Flush()
}

// Skip records a skipped combination.
func (m *Metrics) Skip(string) {
	m.skipped.Inc()
	if err := m.Flush(); err != nil {
		Logger.Warn("Failed to write metrics file", "path", m.path, "error", err)
	}
}

// Flush writes the textfile if a path was configured.
func (m *Metrics) Flush() error {
	if m.path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
