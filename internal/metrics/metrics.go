// Package metrics exposes the engine's Prometheus collectors.
//
// Each Metrics owns its registry so tests and multiple engines never collide
// on the global default registry.
//
// Usage:
//
//	m := metrics.New()
//	m.ExperimentCreated()
//	m.ObservationRecorded("variant-a", true)
//	http.Handle("/metrics", m.Handler())
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// ExperimentsCreated counts created experiments
	ExperimentsCreated prometheus.Counter

	// Transitions counts lifecycle transitions.
	// Labels: to (RUNNING|PAUSED|COMPLETED|ERROR)
	Transitions *prometheus.CounterVec

	// Observations counts appended observations.
	// Labels: success (true|false)
	Observations *prometheus.CounterVec

	// TrialFailures counts trials whose executor returned an error or panicked
	TrialFailures prometheus.Counter

	// BatchDuration measures one batch of trials in seconds.
	// Buckets: 0.01s .. 60s
	BatchDuration prometheus.Histogram

	// Analyses counts analysis runs.
	// Labels: family, valid (true|false), significant (true|false)
	Analyses *prometheus.CounterVec

	// Signals counts monitor signals.
	// Labels: kind
	Signals *prometheus.CounterVec

	// ActiveExperiments is the number of experiments not yet archived
	ActiveExperiments prometheus.Gauge

	// HTTPRequestDuration measures API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// ArchiveErrors counts failed archive writes
	ArchiveErrors prometheus.Counter
}

// New creates and registers all collectors on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExperimentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "gosplit_experiments_created_total",
			Help: "Total number of experiments created",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gosplit_experiment_transitions_total",
			Help: "Lifecycle transitions by target status",
		}, []string{"to"}),
		Observations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gosplit_observations_total",
			Help: "Observations appended, by trial success",
		}, []string{"success"}),
		TrialFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gosplit_trial_failures_total",
			Help: "Trials whose executor returned an error",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gosplit_batch_duration_seconds",
			Help:    "Duration of one trial batch in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gosplit_analyses_total",
			Help: "Analysis runs by family and outcome",
		}, []string{"family", "valid", "significant"}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gosplit_monitor_signals_total",
			Help: "Monitor signals raised by kind",
		}, []string{"kind"}),
		ActiveExperiments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gosplit_active_experiments",
			Help: "Experiments that have not been archived",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gosplit_http_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code"}),
		ArchiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "gosplit_archive_errors_total",
			Help: "Failed writes to the experiment archive",
		}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ExperimentCreated records a creation and bumps the active gauge
func (m *Metrics) ExperimentCreated() {
	if m == nil {
		return
	}
	m.ExperimentsCreated.Inc()
	m.ActiveExperiments.Inc()
}

// Transition records a status change. Archival decrements the active gauge.
func (m *Metrics) Transition(to string, archived bool) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
	if archived {
		m.ActiveExperiments.Dec()
	}
}

// ObservationRecorded counts one appended observation
func (m *Metrics) ObservationRecorded(success bool) {
	if m == nil {
		return
	}
	m.Observations.WithLabelValues(boolLabel(success)).Inc()
}

// TrialFailed counts one failed trial
func (m *Metrics) TrialFailed() {
	if m == nil {
		return
	}
	m.TrialFailures.Inc()
}

// BatchCompleted observes a batch duration
func (m *Metrics) BatchCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(d.Seconds())
}

// AnalysisRun counts one analysis
func (m *Metrics) AnalysisRun(family string, valid, significant bool) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(family, boolLabel(valid), boolLabel(significant)).Inc()
}

// SignalRaised counts one monitor signal
func (m *Metrics) SignalRaised(kind string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(kind).Inc()
}

// HTTPRequest observes one API request
func (m *Metrics) HTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// ArchiveFailed counts a failed archive write
func (m *Metrics) ArchiveFailed() {
	if m == nil {
		return
	}
	m.ArchiveErrors.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
