// Package experiment runs the experiment lifecycle: creation from templates and
// requests, traffic-split batch execution against a trial executor, analysis on
// demand and on stop, and archival of completed experiments.
package experiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal"
	"gosplit/internal/aggregate"
	"gosplit/internal/cohort"
	"gosplit/internal/metrics"
	"gosplit/internal/power"
	"gosplit/internal/templates"
	"gosplit/ports"
)

// Defaults for Options
const (
	DefaultBatchSize     = 5
	DefaultBatchPause    = 100 * time.Millisecond
	DefaultStopReason    = "Manual stop"
	DefaultMaxConcurrent = 10
)

// Options tunes batch execution
type Options struct {
	BatchSize  int
	BatchPause time.Duration
	// MaxConcurrent is the active experiment count the overview tolerates
	// before recommending that tests be finished first
	MaxConcurrent int
	// Defaults is the base configuration templates and requests are merged onto
	Defaults domain.Config
}

// Deps are the collaborators of a Manager. Engine is required; a nil
// Executor means Start and RunBatch accept no tasks; the rest are optional.
type Deps struct {
	Engine    *hypothesis.Engine
	Cohorts   *cohort.Analyzer
	Templates *templates.Catalog
	Executor  ports.TrialExecutor
	Policy    ports.PolicyValidator
	Archive   ports.ExperimentArchive
	Metrics   *metrics.Metrics
	Logger    *internal.Logger
	Clock     core.Clock
	Random    ports.RandomSource
}

// Manager owns every experiment record. Each record serializes its own
// transitions; the registry is the only cross-experiment state.
type Manager struct {
	registry   *Registry
	engine     *hypothesis.Engine
	aggregator *aggregate.Aggregator
	cohorts    *cohort.Analyzer
	templates  *templates.Catalog
	executor   ports.TrialExecutor
	policy     ports.PolicyValidator
	archive    ports.ExperimentArchive
	metrics    *metrics.Metrics
	logger     *internal.Logger
	clock      core.Clock
	random     ports.RandomSource
	validate   *validator.Validate
	opts       Options
}

// NewManager wires a manager. Missing optional deps get working defaults.
func NewManager(deps Deps, opts Options) (*Manager, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("experiment manager requires a hypothesis engine")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchPause < 0 {
		opts.BatchPause = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	opts.Defaults = domain.DefaultConfig().Merge(opts.Defaults)

	m := &Manager{
		registry:   NewRegistry(),
		engine:     deps.Engine,
		aggregator: deps.Engine.Aggregator(),
		cohorts:    deps.Cohorts,
		templates:  deps.Templates,
		executor:   deps.Executor,
		policy:     deps.Policy,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      deps.Clock,
		random:     deps.Random,
		validate:   validator.New(),
		opts:       opts,
	}
	if m.cohorts == nil {
		m.cohorts = cohort.NewAnalyzer(m.aggregator, m.engine, cohort.NewRegistry())
	}
	if m.logger == nil {
		m.logger = internal.DefaultLogger
	}
	if m.clock == nil {
		m.clock = core.SystemClock{}
	}
	if m.random == nil {
		m.random = NewSeededRandom(time.Now().UnixNano())
	}
	return m, nil
}

// Engine exposes the hypothesis engine used for analysis
func (m *Manager) Engine() *hypothesis.Engine { return m.engine }

// Clock returns the manager's clock
func (m *Manager) Clock() core.Clock { return m.clock }

// CreateRequest describes a new experiment. Config fields left zero fall back
// to the template, then to the manager defaults.
type CreateRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Template    string           `json:"template,omitempty"`
	Variants    []domain.Variant `json:"variants"`
	Config      domain.Config    `json:"config"`
}

// Create validates a request and registers a CREATED experiment
func (m *Manager) Create(ctx context.Context, req CreateRequest) (domain.Snapshot, error) {
	if len(req.Variants) < 2 {
		return domain.Snapshot{}, fmt.Errorf("%w: got %d", core.ErrTooFewVariants, len(req.Variants))
	}
	seen := make(map[core.VariantID]bool, len(req.Variants))
	for _, v := range req.Variants {
		if strings.TrimSpace(v.ID.String()) == "" {
			return domain.Snapshot{}, core.NewValidationError("variants", "variant id is required")
		}
		if seen[v.ID] {
			return domain.Snapshot{}, fmt.Errorf("%w: %s", core.ErrDuplicateVariant, v.ID)
		}
		seen[v.ID] = true
	}

	cfg, templateID, err := m.resolveConfig(req)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if hypothesis.RequiresTwoGroups(cfg.Family) && len(req.Variants) != 2 {
		return domain.Snapshot{}, core.NewValidationError("family",
			fmt.Sprintf("%s compares exactly two variants, got %d", cfg.Family, len(req.Variants)))
	}
	if err := m.validate.Struct(cfg); err != nil {
		return domain.Snapshot{}, core.NewValidationError("config", err.Error())
	}
	if err := validateTrafficSplit(req.Variants, cfg.TrafficSplit); err != nil {
		return domain.Snapshot{}, err
	}
	if cfg.CohortDefinition != "" {
		if _, err := m.cohorts.Registry().Get(cfg.CohortDefinition); err != nil {
			return domain.Snapshot{}, err
		}
	}

	id := core.NewExperimentID()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "A/B Test " + id.String()
	}

	if m.policy != nil {
		if err := m.policy.ValidateExperiment(ctx, name, cfg); err != nil {
			return domain.Snapshot{}, fmt.Errorf("%w: experiment %q: %v", core.ErrPolicyRejected, name, err)
		}
		for _, v := range req.Variants {
			if err := m.policy.ValidateVariant(ctx, v); err != nil {
				return domain.Snapshot{}, fmt.Errorf("%w: variant %s: %v", core.ErrPolicyRejected, v.ID, err)
			}
		}
	}

	variants := make([]domain.Variant, len(req.Variants))
	copy(variants, req.Variants)

	rec := &record{
		id:           id,
		name:         name,
		description:  req.Description,
		templateID:   templateID,
		variants:     variants,
		config:       cfg,
		createdAt:    m.clock.Now(),
		status:       domain.StatusCreated,
		distribution: make(map[core.VariantID]int, len(variants)),
	}
	for _, v := range variants {
		rec.distribution[v.ID] = 0
	}
	m.registry.insert(rec)
	m.metrics.ExperimentCreated()
	m.logger.Info("Created experiment %s (%s) with %d variants, family=%s metric=%s", id, name, len(variants), cfg.Family, cfg.Metric)

	return rec.snapshot(), nil
}

// resolveConfig layers defaults, template and request
func (m *Manager) resolveConfig(req CreateRequest) (domain.Config, string, error) {
	cfg := copyConfig(m.opts.Defaults)
	templateID := ""
	if req.Template != "" {
		if m.templates == nil {
			return domain.Config{}, "", core.NewNotFoundError(core.ErrTemplateNotFound, req.Template)
		}
		tmpl, err := m.templates.Get(req.Template)
		if err != nil {
			return domain.Config{}, "", err
		}
		cfg = cfg.Merge(tmpl.Config)
		templateID = tmpl.ID
	}
	cfg = cfg.Merge(req.Config)

	family, err := stats.ParseTestFamily(string(cfg.Family))
	if err != nil {
		return domain.Config{}, "", err
	}
	cfg.Family = family
	return cfg, templateID, nil
}

// lookup finds a record, active or archived
func (m *Manager) lookup(id core.ExperimentID) (*record, bool, error) {
	rec, archived, ok := m.registry.get(id)
	if !ok {
		return nil, false, core.NewNotFoundError(core.ErrExperimentNotFound, id.String())
	}
	return rec, archived, nil
}

// requiredSampleSize is the per-variant power-analysis size times the variant count
func requiredSampleSize(cfg domain.Config, variants int) (int, error) {
	res, err := power.CalculateSampleSize(cfg.EffectSize, cfg.Alpha, cfg.Power, cfg.MinimumSampleSize)
	if err != nil {
		return 0, err
	}
	return res.SampleSize * variants, nil
}

// Start moves a CREATED or PAUSED experiment to RUNNING and drives the given
// tasks through the executor in batches before returning.
func (m *Manager) Start(ctx context.Context, id core.ExperimentID, tasks []domain.TaskContext) (domain.Snapshot, error) {
	rec, _, err := m.lookup(id)
	if err != nil {
		return domain.Snapshot{}, err
	}

	rec.mu.Lock()
	if err := rec.guardLocked("start", domain.StatusRunning); err != nil {
		rec.mu.Unlock()
		return domain.Snapshot{}, err
	}

	if setupErr := m.setupLocked(rec, tasks); setupErr != nil {
		rec.status = domain.StatusError
		rec.errMsg = setupErr.Error()
		now := m.clock.Now()
		rec.endedAt = &now
		snap := rec.snapshotLocked()
		rec.mu.Unlock()
		m.registry.archive(id)
		m.metrics.Transition(string(domain.StatusError), true)
		m.persist(ctx, snap)
		m.logger.Error("Experiment %s failed to start: %v", id, setupErr)
		return domain.Snapshot{}, setupErr
	}

	rec.status = domain.StatusRunning
	if rec.startedAt == nil {
		now := m.clock.Now()
		rec.startedAt = &now
	}
	required := rec.requiredSampleSize
	rec.mu.Unlock()

	m.metrics.Transition(string(domain.StatusRunning), false)
	m.logger.Info("Started experiment %s, required sample size %d", id, required)

	runErr := m.runBatches(ctx, rec, tasks)
	return rec.snapshot(), runErr
}

// setupLocked prepares a record for running. Callers hold rec.mu.
func (m *Manager) setupLocked(rec *record, tasks []domain.TaskContext) error {
	if len(tasks) > 0 && m.executor == nil {
		return fmt.Errorf("%w: no trial executor configured", core.ErrBatchSetup)
	}
	if rec.requiredSampleSize == 0 {
		n, err := requiredSampleSize(rec.config, len(rec.variants))
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrBatchSetup, err)
		}
		rec.requiredSampleSize = n
	}
	return nil
}

// RunBatch drives more tasks through a RUNNING experiment
func (m *Manager) RunBatch(ctx context.Context, id core.ExperimentID, tasks []domain.TaskContext) (domain.Snapshot, error) {
	rec, archived, err := m.lookup(id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if m.executor == nil {
		return domain.Snapshot{}, fmt.Errorf("%w: no trial executor configured", core.ErrBatchSetup)
	}

	rec.mu.Lock()
	status, accepting := rec.status, rec.acceptingLocked()
	rec.mu.Unlock()
	if archived || !accepting {
		return domain.Snapshot{}, fmt.Errorf("%w: experiment %s is %s", core.ErrNotRunning, id, status)
	}

	runErr := m.runBatches(ctx, rec, tasks)
	return rec.snapshot(), runErr
}

// Pause stops future batches. In-flight trials still append.
func (m *Manager) Pause(ctx context.Context, id core.ExperimentID) (domain.Snapshot, error) {
	rec, _, err := m.lookup(id)
	if err != nil {
		return domain.Snapshot{}, err
	}

	rec.mu.Lock()
	if err := rec.guardLocked("pause", domain.StatusPaused); err != nil {
		rec.mu.Unlock()
		return domain.Snapshot{}, err
	}
	rec.status = domain.StatusPaused
	snap := rec.snapshotLocked()
	rec.mu.Unlock()

	m.metrics.Transition(string(domain.StatusPaused), false)
	m.logger.Info("Paused experiment %s after %d samples", id, len(snap.Samples))
	return snap, nil
}

// Stop finalizes a RUNNING experiment. It refuses new batches and samples,
// waits for in-flight batches, runs the final analysis and moves the record to
// the archive as COMPLETED, or ERROR when the analysis fails. Readers see
// RUNNING until the final status is set.
func (m *Manager) Stop(ctx context.Context, id core.ExperimentID, reason string) (domain.Analysis, error) {
	rec, _, err := m.lookup(id)
	if err != nil {
		return domain.Analysis{}, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultStopReason
	}

	rec.mu.Lock()
	if err := rec.guardLocked("stop", domain.StatusCompleted); err != nil {
		rec.mu.Unlock()
		return domain.Analysis{}, err
	}
	rec.stopping = true
	requestedAt := m.clock.Now()
	rec.mu.Unlock()
	m.logger.Debug("Stopping experiment %s, waiting for in-flight batches", id)

	rec.inflight.Wait()

	rec.mu.Lock()
	analysis, analysisErr := m.buildAnalysis(rec.snapshotLocked())
	if analysisErr != nil {
		rec.status = domain.StatusError
		rec.errMsg = analysisErr.Error()
	} else {
		rec.finalAnalysis = &analysis
		rec.status = domain.StatusCompleted
	}
	rec.stopReason = reason
	rec.endedAt = &requestedAt
	snap := rec.snapshotLocked()
	rec.mu.Unlock()

	m.registry.archive(id)
	m.metrics.Transition(string(snap.Status), true)
	m.persist(ctx, snap)

	if analysisErr != nil {
		m.logger.Error("Final analysis of experiment %s failed: %v", id, analysisErr)
		return domain.Analysis{}, analysisErr
	}
	m.logger.Info("Stopped experiment %s (%s): %d samples, significant=%t",
		id, reason, analysis.TotalSamples, analysis.Comparison.Significant)
	return analysis, nil
}

// persist writes a finished experiment to the archive. Failures are logged only.
func (m *Manager) persist(ctx context.Context, snap domain.Snapshot) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Save(ctx, snap); err != nil {
		m.metrics.ArchiveFailed()
		m.logger.Warn("Failed to archive experiment %s: %v", snap.ID, err)
	}
}

// RecordObservation appends an externally measured observation to a RUNNING experiment
func (m *Manager) RecordObservation(ctx context.Context, id core.ExperimentID, o domain.Observation) (domain.Observation, error) {
	rec, _, err := m.lookup(id)
	if err != nil {
		return domain.Observation{}, err
	}
	if !rec.hasVariant(o.VariantID) {
		return domain.Observation{}, core.NewNotFoundError(core.ErrUnknownVariant, o.VariantID.String())
	}
	if o.ID == "" {
		o.ID = core.NewObservationID()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = m.clock.Now()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.status.IsTerminal() {
		return domain.Observation{}, fmt.Errorf("%w: experiment %s is %s", core.ErrTerminalState, id, rec.status)
	}
	if !rec.acceptingLocked() {
		return domain.Observation{}, fmt.Errorf("%w: experiment %s is %s", core.ErrNotRunning, id, rec.status)
	}
	rec.appendLocked(o)
	m.metrics.ObservationRecorded(o.Success)
	return o, nil
}

// Status returns a snapshot from memory or, failing that, the archive
func (m *Manager) Status(ctx context.Context, id core.ExperimentID) (domain.Snapshot, error) {
	if rec, _, ok := m.registry.get(id); ok {
		return rec.snapshot(), nil
	}
	if m.archive != nil {
		snap, err := m.archive.Get(ctx, id)
		if err == nil {
			return snap, nil
		}
		if !core.IsNotFoundError(err) {
			return domain.Snapshot{}, err
		}
	}
	return domain.Snapshot{}, core.NewNotFoundError(core.ErrExperimentNotFound, id.String())
}

// Analyze returns the final analysis of a completed experiment, or analyzes the
// current samples without changing state.
func (m *Manager) Analyze(ctx context.Context, id core.ExperimentID) (domain.Analysis, error) {
	snap, err := m.Status(ctx, id)
	if err != nil {
		return domain.Analysis{}, err
	}
	if snap.FinalAnalysis != nil {
		return *snap.FinalAnalysis, nil
	}
	return m.buildAnalysis(snap)
}

// Cohorts segments an experiment's samples. An empty definition uses the one
// configured on the experiment.
func (m *Manager) Cohorts(ctx context.Context, id core.ExperimentID, definition string) (stats.CohortReport, error) {
	snap, err := m.Status(ctx, id)
	if err != nil {
		return stats.CohortReport{}, err
	}
	if definition == "" {
		definition = snap.Config.CohortDefinition
	}
	if definition == "" {
		return stats.CohortReport{}, core.NewValidationError("definition", "no cohort definition given or configured")
	}

	variants := make([]core.VariantID, len(snap.Variants))
	for i, v := range snap.Variants {
		variants[i] = v.ID
	}
	return m.cohorts.AnalyzeByName(strings.ToUpper(definition), snap.Samples, cohort.Context{
		ExperimentID: snap.ID,
		Variants:     variants,
		Family:       snap.Config.Family,
		Metric:       snap.Config.Metric,
		Alpha:        snap.Config.Alpha,
	})
}

// List filters

const (
	StateActive    = "active"
	StateCompleted = "completed"
	StateAll       = "all"
)

// List returns summaries for state active, completed or all (the default).
// Completed experiments include archived ones no longer held in memory.
func (m *Manager) List(ctx context.Context, state string, limit int) ([]domain.Summary, error) {
	now := m.clock.Now()
	var out []domain.Summary

	state = strings.ToLower(strings.TrimSpace(state))
	switch state {
	case "", StateAll, StateActive, StateCompleted:
	default:
		return nil, core.NewValidationError("state", fmt.Sprintf("unknown state %q", state))
	}

	if state != StateCompleted {
		for _, rec := range m.registry.list(false) {
			out = append(out, rec.snapshot().Summarize(now))
		}
	}
	if state != StateActive {
		seen := make(map[core.ExperimentID]bool)
		for _, rec := range m.registry.list(true) {
			s := rec.snapshot().Summarize(now)
			seen[s.ID] = true
			out = append(out, s)
		}
		if m.archive != nil {
			archived, err := m.archive.List(ctx, limit)
			if err != nil {
				m.logger.Warn("Failed to list archived experiments: %v", err)
			}
			for _, s := range archived {
				if !seen[s.ID] {
					out = append(out, s)
				}
			}
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActiveSnapshots copies every experiment that has not been archived
func (m *Manager) ActiveSnapshots() []domain.Snapshot {
	recs := m.registry.list(false)
	out := make([]domain.Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	return out
}
