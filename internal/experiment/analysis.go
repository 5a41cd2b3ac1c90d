package experiment

import (
	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal/aggregate"
)

// QualityFloor is the mean quality below which QUALITY_IMPROVEMENT is recommended
const QualityFloor = 0.80

// TrafficAlpha is the significance level of the sample-ratio check. It is far
// stricter than a comparison alpha because the check runs on every analysis.
const TrafficAlpha = 0.001

// parametric families assume roughly normal groups
var parametric = map[stats.TestFamily]bool{
	stats.FamilyWelchT: true,
	stats.FamilyANOVA:  true,
}

// lowerIsBetter lists metrics where the smallest mean wins
var lowerIsBetter = map[string]bool{
	aggregate.MetricLatency:    true,
	aggregate.MetricCost:       true,
	aggregate.MetricTokenCount: true,
}

// buildAnalysis is a pure function of the snapshot: the same samples always
// produce the same Analysis.
func (m *Manager) buildAnalysis(snap domain.Snapshot) (domain.Analysis, error) {
	ids := make([]core.VariantID, len(snap.Variants))
	for i, v := range snap.Variants {
		ids[i] = v.ID
	}

	partitioned := aggregate.GroupByVariant(snap.Samples, ids)
	summaries := make([]domain.VariantSummary, len(ids))
	for i, id := range ids {
		summaries[i] = m.aggregator.Summarize(id, partitioned[i])
	}

	groups := hypothesis.GroupsFromObservations(snap.Samples, ids)
	result, err := m.engine.Run(snap.Config.Family, groups, snap.Config.Metric, snap.Config.Alpha)
	if err != nil {
		return domain.Analysis{}, err
	}
	m.metrics.AnalysisRun(string(result.Family), result.Valid, result.Significant)

	analysis := domain.Analysis{
		ExperimentID: snap.ID,
		TotalSamples: len(snap.Samples),
		SampleHash:   sampleHash(snap.Samples),
		Variants:     summaries,
		Comparison:   result,
		Assumptions:  m.engine.Assumptions(groups, snap.Config.Metric),
	}
	if result.Valid && result.Significant {
		analysis.WinningVariant = winner(result, snap.Config.Metric)
	}
	analysis.TrafficCheck = m.trafficCheck(snap, summaries)

	required := snap.RequiredSampleSize
	if required == 0 {
		// Not started yet; a failed calculation just skips the sample-size advice.
		required, _ = requiredSampleSize(snap.Config, len(ids))
	}
	analysis.Recommendations = recommendations(result, analysis.Assumptions, summaries, snap.Samples, required)
	if tc := analysis.TrafficCheck; tc != nil && tc.Valid && tc.Significant {
		analysis.Recommendations = append(analysis.Recommendations, domain.Recommendation{
			Type:     domain.RecommendSystem,
			Priority: "HIGH",
			Message:  "Variant sample counts deviate from the configured traffic split.",
			Action:   "Check variant assignment and executor failures before trusting the comparison",
		})
	}
	return analysis, nil
}

// trafficCheck runs a goodness-of-fit test of the per-variant sample counts
// against the traffic split. It is skipped with no samples or when a variant
// is configured to receive no traffic.
func (m *Manager) trafficCheck(snap domain.Snapshot, summaries []domain.VariantSummary) *stats.AnalysisResult {
	total := len(snap.Samples)
	if total == 0 {
		return nil
	}
	weights := trafficWeights(snap.Variants, snap.Config.TrafficSplit)
	observed := make([]float64, len(summaries))
	expected := make([]float64, len(summaries))
	for i, s := range summaries {
		if weights[i] <= 0 {
			return nil
		}
		observed[i] = float64(s.SampleSize)
		expected[i] = weights[i] * float64(total)
	}
	res, err := m.engine.GoodnessOfFit(observed, expected, TrafficAlpha)
	if err != nil {
		m.logger.Debug("Traffic check skipped for experiment %s: %v", snap.ID, err)
		return nil
	}
	res.Metric = "sample_count"
	return &res
}

// winner picks the group with the best mean, honouring metric direction
func winner(result stats.AnalysisResult, metric string) core.VariantID {
	if len(result.Groups) == 0 {
		return ""
	}
	// chi-square compares success rates, where higher always wins
	lower := lowerIsBetter[metric] && result.Family != stats.FamilyChiSquare

	best := 0
	for i, g := range result.Groups {
		if lower && g.Mean < result.Groups[best].Mean {
			best = i
		}
		if !lower && g.Mean > result.Groups[best].Mean {
			best = i
		}
	}
	return core.VariantID(result.Groups[best].Label)
}

func recommendations(result stats.AnalysisResult, checks stats.AssumptionChecks, summaries []domain.VariantSummary, samples []domain.Observation, required int) []domain.Recommendation {
	recs := []domain.Recommendation{}

	if result.Valid && result.Significant {
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendImplementation,
			Priority: "HIGH",
			Message:  "Statistical significance achieved. Consider implementing winning variant.",
			Action:   "Deploy winning variant to production",
		})
	} else if len(samples) < required {
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendDataCollection,
			Priority: "MEDIUM",
			Message:  "Sample size may be insufficient for reliable conclusions.",
			Action:   "Continue test until reaching adequate sample size",
		})
	}

	// a parametric comparison over clearly non-normal groups is worth a rank test
	if result.Valid && parametric[result.Family] && !checks.ParametricOK() {
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendDataCollection,
			Priority: "LOW",
			Message:  "Metric distribution departs from normality; parametric results may be unreliable.",
			Action:   "Cross-check with the mann_whitney family",
		})
	}

	if quality, ok := meanQuality(summaries, samples); ok && quality < QualityFloor {
		recs = append(recs, domain.Recommendation{
			Type:     domain.RecommendQuality,
			Priority: "HIGH",
			Message:  "Low overall quality detected. Review prompt variants.",
			Action:   "Revise prompt variants to improve quality",
		})
	}
	return recs
}

// meanQuality averages per-variant mean quality over variants with successful
// samples. ok is false when no sample reports quality.
func meanQuality(summaries []domain.VariantSummary, samples []domain.Observation) (float64, bool) {
	reported := false
	for _, o := range samples {
		if _, has := o.Metrics[aggregate.MetricQuality]; has {
			reported = true
			break
		}
	}
	if !reported {
		return 0, false
	}

	total, n := 0.0, 0
	for _, s := range summaries {
		if s.SuccessfulSamples == 0 {
			continue
		}
		total += s.Means[aggregate.MetricQuality]
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

func sampleHash(samples []domain.Observation) core.Hash {
	records := make([]core.SampleRecord, len(samples))
	for i, o := range samples {
		records[i] = core.SampleRecord{
			ID:      o.ID.String(),
			Variant: o.VariantID.String(),
			Success: o.Success,
			Metrics: o.Metrics,
		}
	}
	return core.ComputeSampleHash(records)
}
