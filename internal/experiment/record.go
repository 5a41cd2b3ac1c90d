package experiment

import (
	"fmt"
	"sync"
	"time"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
)

// record is the mutable state of one experiment. Every field after mu is
// guarded by mu. inflight counts batches that have picked their variants but
// not yet appended their observations. stopping is set while Stop drains
// in-flight batches; the published status stays RUNNING until finalization.
type record struct {
	mu       sync.Mutex
	inflight sync.WaitGroup

	id          core.ExperimentID
	name        string
	description string
	templateID  string
	variants    []domain.Variant
	config      domain.Config
	createdAt   time.Time

	status             domain.Status
	stopping           bool
	samples            []domain.Observation
	distribution       map[core.VariantID]int
	requiredSampleSize int
	stopReason         string
	errMsg             string
	startedAt          *time.Time
	endedAt            *time.Time
	finalAnalysis      *domain.Analysis
}

// guardLocked checks that op may move the record to next. Callers hold mu.
func (r *record) guardLocked(op string, next domain.Status) error {
	switch {
	case r.status.IsTerminal():
		return fmt.Errorf("%w: cannot %s experiment %s in status %s", core.ErrTerminalState, op, r.id, r.status)
	case r.stopping:
		return fmt.Errorf("%w: cannot %s experiment %s while it is stopping", core.ErrNotRunning, op, r.id)
	case r.status.CanTransitionTo(next):
		return nil
	case r.status == next:
		return core.NewTransitionError(op, r.id, string(r.status))
	}
	return fmt.Errorf("%w: cannot %s experiment %s in status %s", core.ErrNotRunning, op, r.id, r.status)
}

// acceptingLocked reports whether new samples may be added. Callers hold mu.
func (r *record) acceptingLocked() bool {
	return r.status == domain.StatusRunning && !r.stopping
}

func (r *record) variantIDs() []core.VariantID {
	ids := make([]core.VariantID, len(r.variants))
	for i, v := range r.variants {
		ids[i] = v.ID
	}
	return ids
}

func (r *record) hasVariant(id core.VariantID) bool {
	for _, v := range r.variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// appendLocked appends one observation and bumps the variant distribution
func (r *record) appendLocked(o domain.Observation) {
	r.samples = append(r.samples, o)
	r.distribution[o.VariantID]++
}

// snapshotLocked copies the record. Callers hold mu.
func (r *record) snapshotLocked() domain.Snapshot {
	samples := make([]domain.Observation, len(r.samples))
	copy(samples, r.samples)
	variants := make([]domain.Variant, len(r.variants))
	copy(variants, r.variants)
	dist := make(map[core.VariantID]int, len(r.distribution))
	for k, v := range r.distribution {
		dist[k] = v
	}

	snap := domain.Snapshot{
		ID:                 r.id,
		Name:               r.name,
		Description:        r.description,
		TemplateID:         r.templateID,
		Variants:           variants,
		Config:             copyConfig(r.config),
		Status:             r.status,
		Samples:            samples,
		RequiredSampleSize: r.requiredSampleSize,
		StopReason:         r.stopReason,
		Error:              r.errMsg,
		CreatedAt:          r.createdAt,
		Distribution:       dist,
	}
	if r.startedAt != nil {
		t := *r.startedAt
		snap.StartedAt = &t
	}
	if r.endedAt != nil {
		t := *r.endedAt
		snap.EndedAt = &t
	}
	if r.finalAnalysis != nil {
		a := *r.finalAnalysis
		snap.FinalAnalysis = &a
	}
	return snap
}

func (r *record) snapshot() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func copyConfig(c domain.Config) domain.Config {
	if c.TrafficSplit != nil {
		split := make(map[core.VariantID]float64, len(c.TrafficSplit))
		for k, v := range c.TrafficSplit {
			split[k] = v
		}
		c.TrafficSplit = split
	}
	return c
}
