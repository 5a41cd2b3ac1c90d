package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal"
	"gosplit/internal/aggregate"
	"gosplit/internal/experiment"
	"gosplit/internal/metrics"
	"gosplit/ports"
)

type recordingSink struct {
	mu      sync.Mutex
	signals []domain.Signal
}

func (s *recordingSink) Emit(_ context.Context, sig domain.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

func kinds(signals []domain.Signal) []domain.SignalKind {
	out := make([]domain.SignalKind, len(signals))
	for i, s := range signals {
		out[i] = s.Kind
	}
	return out
}

func fixture(t *testing.T, quality float64) (*experiment.Manager, *core.ManualClock) {
	t.Helper()
	clock := core.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	exec := ports.TrialExecutorFunc(func(_ context.Context, v domain.Variant, task domain.TaskContext) (domain.TrialOutcome, error) {
		var idx int
		fmt.Sscanf(task.ID.String(), "t%d", &idx)
		acc := 0.8
		if v.ID == "a" {
			acc = 0.9
		}
		return domain.TrialOutcome{Success: true, Metrics: map[string]float64{
			"accuracy": acc + float64(idx%5-2)*0.02,
			"quality":  quality,
		}}, nil
	})
	m, err := experiment.NewManager(experiment.Deps{
		Engine:   hypothesis.NewEngine(aggregate.NewAggregator(), hypothesis.DefaultOptions()),
		Executor: exec,
		Logger:   internal.NewLoggerTo(io.Discard, internal.LogLevelError),
		Clock:    clock,
		Random:   experiment.NewSeededRandom(3),
	}, experiment.Options{})
	require.NoError(t, err)
	return m, clock
}

func tasks(n int) []domain.TaskContext {
	out := make([]domain.TaskContext, n)
	for i := range out {
		out[i] = domain.TaskContext{ID: core.TaskID(fmt.Sprintf("t%d", i))}
	}
	return out
}

func startExperiment(t *testing.T, m *experiment.Manager, n int, cfg domain.Config) core.ExperimentID {
	t.Helper()
	ctx := context.Background()
	snap, err := m.Create(ctx, experiment.CreateRequest{
		Variants: []domain.Variant{{ID: "a"}, {ID: "b"}},
		Config:   cfg,
	})
	require.NoError(t, err)
	_, err = m.Start(ctx, snap.ID, tasks(n))
	require.NoError(t, err)
	return snap.ID
}

func TestTick_SignificanceDoesNotStop(t *testing.T) {
	m, _ := fixture(t, 0.9)
	id := startExperiment(t, m, 100, domain.Config{MinimumSampleSize: 30})
	sink := &recordingSink{}
	e := NewEvaluator(m, sink, metrics.New(), nil, Options{})

	signals := e.Tick(context.Background())
	require.Equal(t, []domain.SignalKind{domain.SignalSignificanceAchieved}, kinds(signals))
	assert.Equal(t, core.VariantID("a"), signals[0].WinningVariant)
	assert.Len(t, sink.signals, 1)

	snap, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, snap.Status)
}

func TestTick_LowSampleSizeAndDuration(t *testing.T) {
	m, clock := fixture(t, 0.9)
	startExperiment(t, m, 10, domain.Config{MinimumSampleSize: 40, MaxDuration: time.Hour})
	e := NewEvaluator(m, nil, nil, nil, Options{})

	assert.Equal(t, []domain.SignalKind{domain.SignalLowSampleSize}, kinds(e.Tick(context.Background())))

	clock.Advance(2 * time.Hour)
	assert.ElementsMatch(t,
		[]domain.SignalKind{domain.SignalLowSampleSize, domain.SignalDurationExceeded},
		kinds(e.Tick(context.Background())))
	assert.Len(t, e.Alerts(), 2)
	assert.Len(t, e.Overview().Alerts, 2)
}

func TestTick_QualityIssue(t *testing.T) {
	m, _ := fixture(t, 0.5)
	startExperiment(t, m, 20, domain.Config{MinimumSampleSize: 1000})
	e := NewEvaluator(m, nil, nil, nil, Options{LowSampleRatio: 0.001})

	signals := e.Tick(context.Background())
	require.Equal(t, []domain.SignalKind{domain.SignalQualityIssue}, kinds(signals))
	assert.InDelta(t, 0.5, signals[0].Value, 1e-9)
	assert.Equal(t, domain.SeverityHigh, signals[0].Severity)
}

func TestTick_IgnoresNonRunning(t *testing.T) {
	m, _ := fixture(t, 0.5)
	id := startExperiment(t, m, 20, domain.Config{})
	_, err := m.Pause(context.Background(), id)
	require.NoError(t, err)

	e := NewEvaluator(m, nil, nil, nil, Options{})
	assert.Empty(t, e.Tick(context.Background()))
}

func TestRollingQuality(t *testing.T) {
	var samples []domain.Observation
	for i := 0; i < 150; i++ {
		q := 1.0
		if i >= 50 {
			q = 0.5
		}
		samples = append(samples, domain.Observation{Metrics: map[string]float64{"quality": q}})
	}
	samples = append(samples, domain.Observation{Metrics: map[string]float64{"accuracy": 1}})

	mean, n := RollingQuality(samples, 100)
	assert.Equal(t, 100, n)
	assert.InDelta(t, 0.5, mean, 1e-12)

	_, n = RollingQuality(nil, 100)
	assert.Zero(t, n)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 1m"))
	assert.NoError(t, ValidateSchedule("*/30 * * * * *"))
	assert.Error(t, ValidateSchedule("every minute"))
}

func TestStartStop(t *testing.T) {
	m, _ := fixture(t, 0.9)
	e := NewEvaluator(m, nil, nil, nil, Options{Schedule: "@every 1h"})
	require.NoError(t, e.Start(context.Background()))
	e.Stop()
	e.Stop()

	bad := NewEvaluator(m, nil, nil, nil, Options{Schedule: "nope"})
	assert.Error(t, bad.Start(context.Background()))
}

func TestLogSink_LevelFollowsSeverity(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: internal.NewLoggerTo(&buf, internal.LogLevelWarn)}
	ctx := context.Background()

	sink.Emit(ctx, domain.Signal{Kind: domain.SignalLowSampleSize, Severity: domain.SeverityInfo, Message: "only 3 samples"})
	assert.Empty(t, buf.String())

	sink.Emit(ctx, domain.Signal{Kind: domain.SignalDurationExceeded, Severity: domain.SeverityWarning, Message: "ran 2h"})
	assert.Contains(t, buf.String(), "[DURATION_EXCEEDED] ran 2h")

	buf.Reset()
	errorsOnly := LogSink{Logger: internal.NewLoggerTo(&buf, internal.LogLevelError)}
	errorsOnly.Emit(ctx, domain.Signal{Kind: domain.SignalDurationExceeded, Severity: domain.SeverityWarning, Message: "ran 3h"})
	assert.Empty(t, buf.String())
	errorsOnly.Emit(ctx, domain.Signal{Kind: domain.SignalQualityIssue, Severity: domain.SeverityHigh, Message: "success rate 0.40"})
	assert.Contains(t, buf.String(), "[QUALITY_ISSUE] success rate 0.40")

	// nil logger falls back to the default logger
	assert.NotPanics(t, func() {
		LogSink{}.Emit(ctx, domain.Signal{Kind: domain.SignalLowSampleSize, Severity: domain.SeverityInfo})
	})
}

func TestSinks_FanOutInOrder(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{}
	sinks := Sinks{first, nil, second}
	sig := domain.Signal{Kind: domain.SignalSignificanceAchieved, ExperimentID: "exp_1", WinningVariant: "b"}

	sinks.Emit(context.Background(), sig)
	sinks.Emit(context.Background(), domain.Signal{Kind: domain.SignalLowSampleSize})

	for _, s := range []*recordingSink{first, second} {
		require.Len(t, s.signals, 2)
		assert.Equal(t, sig, s.signals[0])
		assert.Equal(t, domain.SignalLowSampleSize, s.signals[1].Kind)
	}
	assert.NotPanics(t, func() { Sinks(nil).Emit(context.Background(), sig) })
}
