// Package monitor periodically evaluates running experiments and raises
// signals. Signals never change experiment state; stopping stays an explicit
// caller action even when significance is reached.
package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal"
	"gosplit/internal/aggregate"
	"gosplit/internal/experiment"
	"gosplit/internal/metrics"
	"gosplit/internal/stats"
	"gosplit/ports"
)

// Defaults for Options
const (
	DefaultSchedule          = "@every 1m"
	DefaultQualityFloor      = 0.70
	DefaultQualityWindow     = 100
	DefaultQualityMinSamples = 10
	DefaultLowSampleRatio    = 0.5
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ValidateSchedule checks a cron expression or @every descriptor
func ValidateSchedule(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return core.NewValidationError("schedule", fmt.Sprintf("invalid cron expression %q: %v", spec, err))
	}
	return nil
}

// Options tunes the evaluator thresholds
type Options struct {
	Schedule          string
	QualityFloor      float64
	QualityWindow     int
	QualityMinSamples int
	LowSampleRatio    float64
}

func (o Options) normalized() Options {
	if o.Schedule == "" {
		o.Schedule = DefaultSchedule
	}
	if o.QualityFloor <= 0 {
		o.QualityFloor = DefaultQualityFloor
	}
	if o.QualityWindow <= 0 {
		o.QualityWindow = DefaultQualityWindow
	}
	if o.QualityMinSamples <= 0 {
		o.QualityMinSamples = DefaultQualityMinSamples
	}
	if o.LowSampleRatio <= 0 {
		o.LowSampleRatio = DefaultLowSampleRatio
	}
	return o
}

// Evaluator checks every RUNNING experiment on each tick
type Evaluator struct {
	manager *experiment.Manager
	sink    ports.SignalSink
	metrics *metrics.Metrics
	logger  *internal.Logger
	opts    Options

	mu     sync.RWMutex
	alerts []domain.Signal
	cron   *cron.Cron
}

// NewEvaluator creates an evaluator. sink may be nil.
func NewEvaluator(manager *experiment.Manager, sink ports.SignalSink, m *metrics.Metrics, logger *internal.Logger, opts Options) *Evaluator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Evaluator{
		manager: manager,
		sink:    sink,
		metrics: m,
		logger:  logger,
		opts:    opts.normalized(),
	}
}

// Tick evaluates all running experiments once and returns the raised signals.
// The returned set replaces the current alerts.
func (e *Evaluator) Tick(ctx context.Context) []domain.Signal {
	now := e.manager.Clock().Now()
	var signals []domain.Signal

	for _, snap := range e.manager.ActiveSnapshots() {
		if ctx.Err() != nil {
			break
		}
		if snap.Status != domain.StatusRunning {
			continue
		}
		signals = append(signals, e.evaluate(ctx, snap)...)
	}

	for i := range signals {
		signals[i].At = now
		e.metrics.SignalRaised(string(signals[i].Kind))
		if e.sink != nil {
			e.sink.Emit(ctx, signals[i])
		}
	}

	e.mu.Lock()
	e.alerts = signals
	e.mu.Unlock()

	if len(signals) > 0 {
		e.logger.Debug("Monitor tick raised %d signals", len(signals))
	}
	return signals
}

// evaluate runs every check against one snapshot
func (e *Evaluator) evaluate(ctx context.Context, snap domain.Snapshot) []domain.Signal {
	var out []domain.Signal
	minimum := snap.Config.MinimumSampleSize
	samples := len(snap.Samples)

	if samples >= minimum {
		analysis, err := e.manager.Analyze(ctx, snap.ID)
		if err != nil {
			e.logger.Warn("Monitor could not analyze experiment %s: %v", snap.ID, err)
		} else if analysis.Comparison.Valid && analysis.Comparison.Significant {
			out = append(out, domain.Signal{
				Kind:           domain.SignalSignificanceAchieved,
				ExperimentID:   snap.ID,
				Severity:       domain.SeverityInfo,
				Message:        fmt.Sprintf("Experiment %s reached significance (p=%.4f)", snap.ID, analysis.Comparison.PValue),
				Value:          analysis.Comparison.PValue,
				Threshold:      analysis.Comparison.Alpha,
				Recommendation: "Consider stopping the experiment",
				WinningVariant: analysis.WinningVariant,
			})
		}
	}

	if limit := snap.Config.MaxDuration; limit > 0 {
		if elapsed := snap.Duration(e.manager.Clock().Now()); elapsed > limit {
			out = append(out, domain.Signal{
				Kind:           domain.SignalDurationExceeded,
				ExperimentID:   snap.ID,
				Severity:       domain.SeverityWarning,
				Message:        fmt.Sprintf("Experiment %s has run for %v, over the %v maximum", snap.ID, elapsed, limit),
				Value:          elapsed.Hours(),
				Threshold:      limit.Hours(),
				Recommendation: "Stop the experiment and review results",
			})
		}
	}

	if quality, n := RollingQuality(snap.Samples, e.opts.QualityWindow); n > e.opts.QualityMinSamples && quality < e.opts.QualityFloor {
		out = append(out, domain.Signal{
			Kind:           domain.SignalQualityIssue,
			ExperimentID:   snap.ID,
			Severity:       domain.SeverityHigh,
			Message:        fmt.Sprintf("Experiment %s quality dropped to %.2f", snap.ID, quality),
			Value:          quality,
			Threshold:      e.opts.QualityFloor,
			Recommendation: "Review variant quality",
		})
	}

	if floor := e.opts.LowSampleRatio * float64(minimum); float64(samples) < floor {
		out = append(out, domain.Signal{
			Kind:           domain.SignalLowSampleSize,
			ExperimentID:   snap.ID,
			Severity:       domain.SeverityInfo,
			Message:        fmt.Sprintf("Experiment %s has %d samples, below %.0f", snap.ID, samples, floor),
			Value:          float64(samples),
			Threshold:      floor,
			Recommendation: "Increase traffic allocation or extend the test",
		})
	}
	return out
}

// RollingQuality is the mean of the last window quality values and how many
// were used. Observations without a quality metric are skipped.
func RollingQuality(samples []domain.Observation, window int) (float64, int) {
	values := make([]float64, 0, window)
	for i := len(samples) - 1; i >= 0 && len(values) < window; i-- {
		if q, ok := samples[i].Metrics[aggregate.MetricQuality]; ok {
			values = append(values, q)
		}
	}
	if len(values) == 0 {
		return 0, 0
	}
	return stats.Mean(values), len(values)
}

// Alerts returns the signals raised on the last tick
func (e *Evaluator) Alerts() []domain.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Signal, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// Overview returns the manager overview with current alerts attached
func (e *Evaluator) Overview() experiment.Overview {
	ov := e.manager.Overview()
	ov.Alerts = e.Alerts()
	return ov
}

// Start schedules Tick on the configured cron spec. Overlapping ticks are skipped.
func (e *Evaluator) Start(ctx context.Context) error {
	if err := ValidateSchedule(e.opts.Schedule); err != nil {
		return err
	}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(e.opts.Schedule, func() { e.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule monitor: %w", err)
	}

	e.mu.Lock()
	e.cron = c
	e.mu.Unlock()

	c.Start()
	e.logger.Info("Monitor scheduled with %q", e.opts.Schedule)
	return nil
}

// Stop halts the scheduler and waits for a running tick
func (e *Evaluator) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// LogSink writes signals to the logger
type LogSink struct {
	Logger *internal.Logger
}

// Emit logs a signal at a level matching its severity
func (s LogSink) Emit(_ context.Context, sig domain.Signal) {
	logger := s.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	switch sig.Severity {
	case domain.SeverityHigh:
		logger.Error("[%s] %s", sig.Kind, sig.Message)
	case domain.SeverityWarning:
		logger.Warn("[%s] %s", sig.Kind, sig.Message)
	default:
		logger.Info("[%s] %s", sig.Kind, sig.Message)
	}
}

// Sinks fans a signal out to every sink in order
type Sinks []ports.SignalSink

// Emit forwards sig to each non-nil sink
func (s Sinks) Emit(ctx context.Context, sig domain.Signal) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, sig)
		}
	}
}
