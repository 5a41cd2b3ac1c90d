package experiment

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal/cohort"
)

// assignment pairs a task with the variant picked for it
type assignment struct {
	variant domain.Variant
	task    domain.TaskContext
}

// runBatches splits tasks into fixed-size batches and runs them one after
// another, pausing between batches. It returns early once the experiment
// leaves RUNNING or ctx is done.
func (m *Manager) runBatches(ctx context.Context, rec *record, tasks []domain.TaskContext) error {
	size := m.opts.BatchSize
	for start := 0; start < len(tasks); start += size {
		if start > 0 && m.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.opts.BatchPause):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}

		batch, ok := m.assign(rec, tasks[start:end])
		if !ok {
			m.logger.Debug("Experiment %s left RUNNING, skipping %d remaining tasks", rec.id, len(tasks)-start)
			return nil
		}
		m.executeBatch(ctx, rec, batch)
	}
	return nil
}

// assign picks variants for a batch and registers it as in flight. It fails
// when the experiment is no longer RUNNING or is being stopped.
func (m *Manager) assign(rec *record, tasks []domain.TaskContext) ([]assignment, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.acceptingLocked() {
		return nil, false
	}

	weights := trafficWeights(rec.variants, rec.config.TrafficSplit)
	batch := make([]assignment, len(tasks))
	for i, task := range tasks {
		batch[i] = assignment{
			variant: rec.variants[pickVariant(weights, m.random.Float64())],
			task:    task,
		}
	}
	rec.inflight.Add(1)
	return batch, true
}

// executeBatch runs every trial of a batch concurrently. Each trial appends its
// own observation on completion, so the batch always completes.
func (m *Manager) executeBatch(ctx context.Context, rec *record, batch []assignment) {
	defer rec.inflight.Done()
	started := time.Now()

	var g errgroup.Group
	g.SetLimit(len(batch))
	for _, a := range batch {
		a := a
		g.Go(func() error {
			obs := m.runTrial(ctx, a)

			rec.mu.Lock()
			rec.appendLocked(obs)
			rec.mu.Unlock()

			m.metrics.ObservationRecorded(obs.Success)
			return nil
		})
	}
	_ = g.Wait()

	m.metrics.BatchCompleted(time.Since(started))
	m.logger.Debug("Experiment %s completed batch of %d trials in %v", rec.id, len(batch), time.Since(started))
}

// runTrial executes one trial. Executor errors and panics become unsuccessful
// observations.
func (m *Manager) runTrial(ctx context.Context, a assignment) (obs domain.Observation) {
	obs = domain.Observation{
		ID:         core.NewObservationID(),
		VariantID:  a.variant.ID,
		TaskID:     a.task.ID,
		Attributes: taskAttributes(a.task),
	}

	defer func() {
		if r := recover(); r != nil {
			obs.Success = false
			obs.Metrics = nil
			obs.Error = fmt.Sprintf("trial panicked: %v", r)
			obs.Timestamp = m.clock.Now()
			m.metrics.TrialFailed()
			m.logger.Warn("Trial for variant %s panicked: %v", a.variant.ID, r)
		}
	}()

	outcome, err := m.executor.Execute(ctx, a.variant, a.task)
	obs.Timestamp = m.clock.Now()
	if err != nil {
		obs.Success = false
		obs.Error = err.Error()
		m.metrics.TrialFailed()
		m.logger.Debug("Trial for variant %s failed: %v", a.variant.ID, err)
		return obs
	}

	obs.Success = outcome.Success
	if len(outcome.Metrics) > 0 {
		obs.Metrics = make(map[string]float64, len(outcome.Metrics))
		for k, v := range outcome.Metrics {
			obs.Metrics[k] = v
		}
	}
	return obs
}

// taskAttributes copies the task's attributes, exposing its category to the
// AGENT_CATEGORY cohort rule
func taskAttributes(task domain.TaskContext) map[string]string {
	if len(task.Attributes) == 0 && task.Category == "" {
		return nil
	}
	attrs := make(map[string]string, len(task.Attributes)+1)
	for k, v := range task.Attributes {
		attrs[k] = v
	}
	if task.Category != "" {
		if _, set := attrs[cohort.AttrAgentCategory]; !set {
			attrs[cohort.AttrAgentCategory] = task.Category
		}
	}
	return attrs
}
