package cohort

import (
	"fmt"
	"sort"
	"sync"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal/aggregate"
)

// Built-in definition names
const (
	AgentCategory   = "AGENT_CATEGORY"
	TaskComplexity  = "TASK_COMPLEXITY"
	ResponseTime    = "RESPONSE_TIME"
	CostSensitivity = "COST_SENSITIVITY"
)

// Observation attributes read by the built-in rules
const (
	AttrAgentCategory  = "agent_category"
	AttrTaskComplexity = "task_complexity"
	AttrCostPreference = "cost_preference"
)

// Unassigned is returned by rules that cannot place an observation
const Unassigned = "UNKNOWN"

// Context is the experiment-level information a rule or comparison may need
type Context struct {
	ExperimentID core.ExperimentID
	Variants     []core.VariantID
	Family       stats.TestFamily
	Metric       string
	Alpha        float64
}

// AssignmentRule maps an observation to a segment name. It must be pure.
type AssignmentRule func(o experiment.Observation, ctx Context) string

// Definition is a named segmentation: the expected segments and the rule
type Definition struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Segments    []string       `json:"segments"`
	Rule        AssignmentRule `json:"-"`
}

func attributeRule(attr, fallback string) AssignmentRule {
	return func(o experiment.Observation, _ Context) string {
		if v := o.Attribute(attr); v != "" {
			return v
		}
		return fallback
	}
}

func responseTimeRule(o experiment.Observation, _ Context) string {
	latency := o.Metric(aggregate.MetricLatency)
	if latency == 0 {
		latency = 2000
	}
	switch {
	case latency < 1000:
		return "FAST (<1s)"
	case latency > 3000:
		return "SLOW (>3s)"
	default:
		return "NORMAL (1-3s)"
	}
}

// BuiltinDefinitions returns the four standard segmentations
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        AgentCategory,
			Title:       "Agent Category Cohorts",
			Description: "Segment by agent specialization",
			Segments:    []string{"DEVELOPMENT_EXPERTS", "AI_ML_SPECIALISTS", "BUSINESS_LOGIC", "USER_EXPERIENCE", "INTEGRATION_SERVICES"},
			Rule:        attributeRule(AttrAgentCategory, Unassigned),
		},
		{
			Name:        TaskComplexity,
			Title:       "Task Complexity Cohorts",
			Description: "Segment by task complexity level",
			Segments:    []string{"SIMPLE", "MEDIUM", "COMPLEX", "ENTERPRISE"},
			Rule:        attributeRule(AttrTaskComplexity, "MEDIUM"),
		},
		{
			Name:        ResponseTime,
			Title:       "Response Time Cohorts",
			Description: "Segment by response time",
			Segments:    []string{"FAST (<1s)", "NORMAL (1-3s)", "SLOW (>3s)"},
			Rule:        responseTimeRule,
		},
		{
			Name:        CostSensitivity,
			Title:       "Cost Sensitivity Cohorts",
			Description: "Segment by cost vs quality preference",
			Segments:    []string{"COST_OPTIMIZED", "BALANCED", "QUALITY_FIRST"},
			Rule:        attributeRule(AttrCostPreference, "BALANCED"),
		},
	}
}

// Registry holds cohort definitions by name
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns a registry preloaded with the built-in definitions
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, d := range BuiltinDefinitions() {
		r.defs[d.Name] = d
	}
	return r
}

// Register adds or replaces a definition
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return core.NewValidationError("name", "cohort definition name is required")
	}
	if def.Rule == nil {
		return core.NewValidationError("rule", fmt.Sprintf("cohort definition %s has no assignment rule", def.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// Get looks a definition up by name
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, core.NewNotFoundError(core.ErrUnknownCohort, name)
	}
	return def, nil
}

// Names lists registered definitions, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
