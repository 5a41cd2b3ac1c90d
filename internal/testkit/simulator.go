// Package testkit provides a seeded simulated trial executor and task
// generator for demos, the simulate command and tests.
package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal/aggregate"
	"gosplit/ports"
)

// Profile describes how a simulated variant behaves
type Profile struct {
	SuccessRate  float64
	AccuracyMean float64
	AccuracySD   float64
	QualityMean  float64
	QualitySD    float64
	LatencyMean  float64
	LatencySD    float64
	CostPerTrial float64
	Tokens       float64
}

// DefaultProfile is a middling variant
func DefaultProfile() Profile {
	return Profile{
		SuccessRate:  0.9,
		AccuracyMean: 0.82,
		AccuracySD:   0.08,
		QualityMean:  0.8,
		QualitySD:    0.1,
		LatencyMean:  1500,
		LatencySD:    400,
		CostPerTrial: 0.02,
		Tokens:       800,
	}
}

// SimulatedExecutor draws trial outcomes from per-variant profiles. Draws are
// serialized so a fixed seed and call order reproduce the same outcomes.
type SimulatedExecutor struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	profiles map[core.VariantID]Profile
	fallback Profile
}

var _ ports.TrialExecutor = (*SimulatedExecutor)(nil)

// NewSimulatedExecutor creates an executor. Variants without a profile use DefaultProfile.
func NewSimulatedExecutor(seed int64, profiles map[core.VariantID]Profile) *SimulatedExecutor {
	copied := make(map[core.VariantID]Profile, len(profiles))
	for k, v := range profiles {
		copied[k] = v
	}
	return &SimulatedExecutor{
		rnd:      rand.New(rand.NewSource(seed)),
		profiles: copied,
		fallback: DefaultProfile(),
	}
}

// Execute draws one outcome
func (s *SimulatedExecutor) Execute(ctx context.Context, variant domain.Variant, task domain.TaskContext) (domain.TrialOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.TrialOutcome{}, err
	}
	p, ok := s.profiles[variant.ID]
	if !ok {
		p = s.fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	success := s.rnd.Float64() < p.SuccessRate
	latency := math.Max(50, p.LatencyMean+s.rnd.NormFloat64()*p.LatencySD)
	if task.Attributes["task_complexity"] == "COMPLEX" {
		latency *= 1.5
	}
	metrics := map[string]float64{
		aggregate.MetricLatency:    latency,
		aggregate.MetricCost:       p.CostPerTrial,
		aggregate.MetricTokenCount: math.Round(p.Tokens * (0.8 + 0.4*s.rnd.Float64())),
	}
	if success {
		metrics[aggregate.MetricAccuracy] = clamp01(p.AccuracyMean + s.rnd.NormFloat64()*p.AccuracySD)
		metrics[aggregate.MetricQuality] = clamp01(p.QualityMean + s.rnd.NormFloat64()*p.QualitySD)
	}
	return domain.TrialOutcome{Success: success, Metrics: metrics}, nil
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// Segment values cycled through by GenerateTasks
var (
	categories   = []string{"DEVELOPMENT_EXPERTS", "AI_ML_SPECIALISTS", "BUSINESS_LOGIC", "USER_EXPERIENCE", "INTEGRATION_SERVICES"}
	complexities = []string{"SIMPLE", "MEDIUM", "COMPLEX", "ENTERPRISE"}
	preferences  = []string{"COST_OPTIMIZED", "BALANCED", "QUALITY_FIRST"}
)

// GenerateTasks builds n tasks spread over every cohort segment
func GenerateTasks(n int) []domain.TaskContext {
	tasks := make([]domain.TaskContext, n)
	for i := range tasks {
		tasks[i] = domain.TaskContext{
			ID:       core.TaskID(fmt.Sprintf("task-%04d", i+1)),
			Category: categories[i%len(categories)],
			Attributes: map[string]string{
				"task_complexity": complexities[i%len(complexities)],
				"cost_preference": preferences[i%len(preferences)],
			},
		}
	}
	return tasks
}

// TaskGenerator is a TaskSource producing Count generated tasks
type TaskGenerator struct {
	Count int
}

// LoadTasks implements ports.TaskSource
func (g TaskGenerator) LoadTasks(ctx context.Context) ([]domain.TaskContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return GenerateTasks(g.Count), nil
}
