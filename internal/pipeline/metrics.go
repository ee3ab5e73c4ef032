package pipeline

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/promptmill/internal/record"
)

// Phase labels used in metrics and reports.
const (
	PhaseGenerate = "generate"
	PhaseDispatch = "dispatch"
)

// Metrics records pipeline outcomes in a private Prometheus registry. The
// process is a batch job, so the registry is exported as a node-exporter
// textfile rather than scraped.
type Metrics struct {
	registry  *prometheus.Registry
	attempts  *prometheus.CounterVec
	successes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	prompts   *prometheus.GaugeVec
	lastRun   prometheus.Gauge
	duration  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptmill",
			Name:      "phase_attempts_total",
			Help:      "Iterations started per pipeline phase.",
		}, []string{"phase"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptmill",
			Name:      "phase_successes_total",
			Help:      "Iterations that succeeded per pipeline phase.",
		}, []string{"phase"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptmill",
			Name:      "phase_failures_total",
			Help:      "Iterations that failed per pipeline phase and failure kind.",
		}, []string{"phase", "kind"}),
		prompts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "promptmill",
			Name:      "prompts",
			Help:      "Prompts in the store by status at the end of the run.",
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "promptmill",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "promptmill",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(m.attempts, m.successes, m.failures, m.prompts, m.lastRun, m.duration)
	return m
}

// ObservePhase adds a phase report to the counters.
func (m *Metrics) ObservePhase(phase string, r PhaseReport) {
	m.attempts.WithLabelValues(phase).Add(float64(r.Attempted))
	m.successes.WithLabelValues(phase).Add(float64(r.Succeeded))
	for kind, n := range r.Failures {
		m.failures.WithLabelValues(phase, kind).Add(float64(n))
	}
}

// ObserveCounts sets the per-status gauges.
func (m *Metrics) ObserveCounts(c record.Counts) {
	m.prompts.WithLabelValues(string(record.StatusPending)).Set(float64(c.Pending))
	m.prompts.WithLabelValues(string(record.StatusCompleted)).Set(float64(c.Completed))
}

// ObserveRun records when the run finished and how long it took.
func (m *Metrics) ObserveRun(started, finished time.Time) {
	m.lastRun.Set(float64(finished.Unix()))
	m.duration.Set(finished.Sub(started).Seconds())
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is written to a temp file and renamed into place.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
