package experiment

import (
	"time"

	"gosplit/domain/core"
	"gosplit/domain/stats"
)

// Status is the lifecycle state of an experiment
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusStopped   Status = "STOPPED"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusError
}

// transitions is the full state machine. RUNNING<->PAUSED is the only cycle and
// terminal states have no outgoing edges. A stop finalizes RUNNING straight to
// COMPLETED, or ERROR when the final analysis fails. STOPPED is never entered
// by the manager; it is kept so archived records from older writers still read
// as terminal.
var transitions = map[Status][]Status{
	StatusCreated: {StatusRunning, StatusError},
	StatusRunning: {StatusPaused, StatusCompleted, StatusError},
	StatusPaused:  {StatusRunning, StatusError},
}

// CanTransitionTo reports whether s -> next is a legal move
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Variant is one candidate being compared. Payload is opaque to the engine.
type Variant struct {
	ID      core.VariantID         `json:"id" validate:"required"`
	Name    string                 `json:"name,omitempty"`
	Type    string                 `json:"type,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Config is fixed at creation time
type Config struct {
	Family            stats.TestFamily           `json:"family" yaml:"family"`
	Metric            string                     `json:"metric" yaml:"metric" validate:"required"`
	Alpha             float64                    `json:"alpha" yaml:"alpha" validate:"gt=0,lt=1"`
	Power             float64                    `json:"power" yaml:"power" validate:"gt=0,lt=1"`
	EffectSize        float64                    `json:"effect_size" yaml:"effect_size" validate:"gt=0"`
	MinimumSampleSize int                        `json:"minimum_sample_size" yaml:"minimum_sample_size" validate:"gte=2"`
	MaxDuration       time.Duration              `json:"max_duration" yaml:"max_duration" validate:"gt=0"`
	TrafficSplit      map[core.VariantID]float64 `json:"traffic_split,omitempty" yaml:"traffic_split"`
	CohortDefinition  string                     `json:"cohort_definition,omitempty" yaml:"cohort_definition"`
}

// Defaults used when neither the request nor a template sets a field
const (
	DefaultMetric            = "accuracy"
	DefaultAlpha             = 0.05
	DefaultPower             = 0.80
	DefaultEffectSize        = 0.1
	DefaultMinimumSampleSize = 30
	DefaultMaxDuration       = 30 * 24 * time.Hour
)

// DefaultConfig returns the baseline configuration
func DefaultConfig() Config {
	return Config{
		Family:            stats.FamilyAuto,
		Metric:            DefaultMetric,
		Alpha:             DefaultAlpha,
		Power:             DefaultPower,
		EffectSize:        DefaultEffectSize,
		MinimumSampleSize: DefaultMinimumSampleSize,
		MaxDuration:       DefaultMaxDuration,
	}
}

// Merge overlays every non-zero field of o onto c
func (c Config) Merge(o Config) Config {
	if o.Family != "" {
		c.Family = o.Family
	}
	if o.Metric != "" {
		c.Metric = o.Metric
	}
	if o.Alpha != 0 {
		c.Alpha = o.Alpha
	}
	if o.Power != 0 {
		c.Power = o.Power
	}
	if o.EffectSize != 0 {
		c.EffectSize = o.EffectSize
	}
	if o.MinimumSampleSize != 0 {
		c.MinimumSampleSize = o.MinimumSampleSize
	}
	if o.MaxDuration != 0 {
		c.MaxDuration = o.MaxDuration
	}
	if len(o.TrafficSplit) > 0 {
		split := make(map[core.VariantID]float64, len(o.TrafficSplit))
		for k, v := range o.TrafficSplit {
			split[k] = v
		}
		c.TrafficSplit = split
	}
	if o.CohortDefinition != "" {
		c.CohortDefinition = o.CohortDefinition
	}
	return c
}

// TaskContext is one unit of work a trial is executed against
type TaskContext struct {
	ID         core.TaskID            `json:"id"`
	Category   string                 `json:"category,omitempty"`
	Attributes map[string]string      `json:"attributes,omitempty"`
	Input      map[string]interface{} `json:"input,omitempty"`
}

// TrialOutcome is what a trial executor reports back
type TrialOutcome struct {
	Success bool               `json:"success"`
	Metrics map[string]float64 `json:"metrics"`
}

// Observation is one measured outcome. Immutable once appended.
type Observation struct {
	ID         core.ObservationID `json:"id"`
	VariantID  core.VariantID     `json:"variant_id"`
	TaskID     core.TaskID        `json:"task_id,omitempty"`
	Success    bool               `json:"success"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Attributes map[string]string  `json:"attributes,omitempty"`
	Error      string             `json:"error,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Metric returns the named metric, treating absence as 0
func (o Observation) Metric(name string) float64 {
	return o.Metrics[name]
}

// Attribute returns a task attribute or "" when unset
func (o Observation) Attribute(name string) string {
	return o.Attributes[name]
}

// VariantSummary is the per-variant descriptive block of an analysis
type VariantSummary struct {
	VariantID           core.VariantID                    `json:"variant_id"`
	SampleSize          int                               `json:"sample_size"`
	SuccessfulSamples   int                               `json:"successful_samples"`
	SuccessRate         float64                           `json:"success_rate"`
	Means               map[string]float64                `json:"means"`
	Variances           map[string]float64                `json:"variances"`
	ConfidenceIntervals map[string]stats.CredibleInterval `json:"confidence_intervals"`
}

// RecommendationType classifies an analysis recommendation
type RecommendationType string

const (
	RecommendImplementation RecommendationType = "IMPLEMENTATION"
	RecommendDataCollection RecommendationType = "DATA_COLLECTION"
	RecommendQuality        RecommendationType = "QUALITY_IMPROVEMENT"
	RecommendSystem         RecommendationType = "SYSTEM_OPTIMIZATION"
)

// Recommendation is an actionable next step derived from an analysis
type Recommendation struct {
	Type     RecommendationType `json:"type"`
	Priority string             `json:"priority"`
	Message  string             `json:"message"`
	Action   string             `json:"action"`
}

// Analysis is the full analysis of an experiment's sample set at one point in time.
// It carries no wall-clock fields so repeated analysis of the same samples is identical.
type Analysis struct {
	ExperimentID core.ExperimentID      `json:"experiment_id"`
	TotalSamples int                    `json:"total_samples"`
	SampleHash   core.Hash              `json:"sample_hash"`
	Variants     []VariantSummary       `json:"variants"`
	Comparison   stats.AnalysisResult   `json:"comparison"`
	Assumptions  stats.AssumptionChecks `json:"assumptions"`
	// TrafficCheck tests the per-variant sample counts against the configured
	// traffic split. Nil until there are samples.
	TrafficCheck    *stats.AnalysisResult `json:"traffic_check,omitempty"`
	WinningVariant  core.VariantID        `json:"winning_variant,omitempty"`
	Recommendations []Recommendation      `json:"recommendations"`
}

// Snapshot is an immutable copy of an experiment record
type Snapshot struct {
	ID                 core.ExperimentID      `json:"id"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	TemplateID         string                 `json:"template_id,omitempty"`
	Variants           []Variant              `json:"variants"`
	Config             Config                 `json:"config"`
	Status             Status                 `json:"status"`
	Samples            []Observation          `json:"samples"`
	RequiredSampleSize int                    `json:"required_sample_size"`
	StopReason         string                 `json:"stop_reason,omitempty"`
	Error              string                 `json:"error,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	StartedAt          *time.Time             `json:"started_at,omitempty"`
	EndedAt            *time.Time             `json:"ended_at,omitempty"`
	FinalAnalysis      *Analysis              `json:"final_analysis,omitempty"`
	Distribution       map[core.VariantID]int `json:"variant_distribution"`
}

// Duration returns the running time, measured to EndedAt or now
func (s Snapshot) Duration(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(*s.StartedAt)
}

// Progress is samples collected over the required sample size
func (s Snapshot) Progress() float64 {
	target := s.RequiredSampleSize
	if target <= 0 {
		target = s.Config.MinimumSampleSize
	}
	if target <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(target)
}

// SuccessRate over all samples
func (s Snapshot) SuccessRate() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	ok := 0
	for _, o := range s.Samples {
		if o.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(s.Samples))
}

// TotalMetric sums a metric across every sample
func (s Snapshot) TotalMetric(name string) float64 {
	total := 0.0
	for _, o := range s.Samples {
		total += o.Metric(name)
	}
	return total
}

// Summary is the list view of an experiment
type Summary struct {
	ID             core.ExperimentID `json:"id"`
	Name           string            `json:"name"`
	Status         Status            `json:"status"`
	Variants       int               `json:"variants"`
	Samples        int               `json:"samples"`
	SuccessRate    float64           `json:"success_rate"`
	Progress       float64           `json:"progress"`
	Duration       time.Duration     `json:"duration"`
	WinnerDecided  bool              `json:"winner_decided"`
	WinningVariant core.VariantID    `json:"winning_variant,omitempty"`
}

// Summarize derives the list view
func (s Snapshot) Summarize(now time.Time) Summary {
	sum := Summary{
		ID:          s.ID,
		Name:        s.Name,
		Status:      s.Status,
		Variants:    len(s.Variants),
		Samples:     len(s.Samples),
		SuccessRate: s.SuccessRate(),
		Progress:    s.Progress(),
		Duration:    s.Duration(now),
	}
	if s.FinalAnalysis != nil && s.FinalAnalysis.Comparison.Significant {
		sum.WinnerDecided = true
		sum.WinningVariant = s.FinalAnalysis.WinningVariant
	}
	return sum
}
