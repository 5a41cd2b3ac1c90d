package experiment

import (
	"sort"
	"time"

	domain "gosplit/domain/experiment"
	"gosplit/internal/aggregate"
)

// Overview thresholds
const (
	// RecentCompletedLimit caps Overview.RecentCompleted
	RecentCompletedLimit = 5
	// HealthySuccessRate is the overall success rate below which the overview
	// recommends a quality review
	HealthySuccessRate = 0.80
)

// Overview is the operational dashboard across every experiment held in memory
type Overview struct {
	ActiveExperiments        int                     `json:"active_experiments"`
	CompletedExperiments     int                     `json:"completed_experiments"`
	TotalSamples             int                     `json:"total_samples"`
	AverageDuration          time.Duration           `json:"average_duration"`
	OverallSuccessRate       float64                 `json:"overall_success_rate"`
	AverageCostPerExperiment float64                 `json:"average_cost_per_experiment"`
	Active                   []domain.Summary        `json:"active_summary"`
	RecentCompleted          []domain.Summary        `json:"recent_completed"`
	Alerts                   []domain.Signal         `json:"current_alerts"`
	Recommendations          []domain.Recommendation `json:"recommendations"`
}

// Overview aggregates active and completed experiments. Alerts are filled in by
// the monitor.
func (m *Manager) Overview() Overview {
	now := m.clock.Now()
	active, completed := m.registry.counts()
	ov := Overview{
		ActiveExperiments:    active,
		CompletedExperiments: completed,
		Active:               []domain.Summary{},
		RecentCompleted:      []domain.Summary{},
		Alerts:               []domain.Signal{},
	}

	var all []domain.Snapshot
	for _, rec := range m.registry.list(false) {
		snap := rec.snapshot()
		ov.Active = append(ov.Active, snap.Summarize(now))
		all = append(all, snap)
	}

	var finished []domain.Snapshot
	var durationTotal time.Duration
	for _, rec := range m.registry.list(true) {
		snap := rec.snapshot()
		durationTotal += snap.Duration(now)
		finished = append(finished, snap)
		all = append(all, snap)
	}
	if completed > 0 {
		ov.AverageDuration = durationTotal / time.Duration(completed)
	}
	ov.RecentCompleted = recentCompleted(finished, now)

	successes, costTotal := 0, 0.0
	for _, snap := range all {
		ov.TotalSamples += len(snap.Samples)
		successes += aggregate.CountSuccessful(snap.Samples)
		costTotal += snap.TotalMetric(aggregate.MetricCost)
	}
	if ov.TotalSamples > 0 {
		ov.OverallSuccessRate = float64(successes) / float64(ov.TotalSamples)
	}
	if len(all) > 0 {
		ov.AverageCostPerExperiment = costTotal / float64(len(all))
	}
	ov.Recommendations = m.systemRecommendations(ov)
	return ov
}

// recentCompleted returns the latest finished experiments, newest first
func recentCompleted(finished []domain.Snapshot, now time.Time) []domain.Summary {
	sort.SliceStable(finished, func(i, j int) bool {
		return endTime(finished[i]).After(endTime(finished[j]))
	})
	if len(finished) > RecentCompletedLimit {
		finished = finished[:RecentCompletedLimit]
	}
	out := make([]domain.Summary, len(finished))
	for i, snap := range finished {
		out[i] = snap.Summarize(now)
	}
	return out
}

func endTime(s domain.Snapshot) time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.CreatedAt
}

// systemRecommendations flags too many concurrent experiments and a low
// overall success rate. The success check needs at least one sample.
func (m *Manager) systemRecommendations(ov Overview) []domain.Recommendation {
	out := []domain.Recommendation{}
	if ov.ActiveExperiments > m.opts.MaxConcurrent {
		out = append(out, domain.Recommendation{
			Type:     domain.RecommendSystem,
			Priority: "MEDIUM",
			Message:  "High number of concurrent experiments may impact performance",
			Action:   "Consider completing some experiments before starting new ones",
		})
	}
	if ov.TotalSamples > 0 && ov.OverallSuccessRate < HealthySuccessRate {
		out = append(out, domain.Recommendation{
			Type:     domain.RecommendQuality,
			Priority: "HIGH",
			Message:  "Overall trial success rate is low",
			Action:   "Review variant quality and experiment configurations",
		})
	}
	return out
}
