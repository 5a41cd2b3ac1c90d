// Package cohort partitions observations into named segments and compares them.
package cohort

import (
	"fmt"

	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal/aggregate"
)

// Insight thresholds
const (
	AccuracyFloor    = 0.80
	LatencyCeilingMs = 3000.0
	costScale        = 0.5
)

// Analyzer runs cohort analyses. Segment metrics average every observation in
// the segment, failed trials included; the per-segment variant comparison uses
// the engine's own scopes.
type Analyzer struct {
	segments *aggregate.Aggregator
	engine   *hypothesis.Engine
	registry *Registry
}

// NewAnalyzer creates an analyzer. engine may be nil to skip per-segment variant comparison.
func NewAnalyzer(aggregator *aggregate.Aggregator, engine *hypothesis.Engine, registry *Registry) *Analyzer {
	if aggregator == nil {
		aggregator = aggregate.NewAggregator()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Analyzer{segments: aggregator.AllTrials(), engine: engine, registry: registry}
}

// Registry exposes the definitions the analyzer resolves names against
func (a *Analyzer) Registry() *Registry {
	return a.registry
}

// AnalyzeByName resolves a registered definition and analyzes it
func (a *Analyzer) AnalyzeByName(name string, observations []experiment.Observation, ctx Context) (stats.CohortReport, error) {
	def, err := a.registry.Get(name)
	if err != nil {
		return stats.CohortReport{}, err
	}
	return a.Analyze(def, observations, ctx), nil
}

// Analyze partitions observations with def.Rule. Observations assigned to a name
// outside def.Segments are dropped; empty segments are omitted. Segments are
// reported in definition order.
func (a *Analyzer) Analyze(def Definition, observations []experiment.Observation, ctx Context) stats.CohortReport {
	index := make(map[string]int, len(def.Segments))
	for i, s := range def.Segments {
		index[s] = i
	}
	buckets := make([][]experiment.Observation, len(def.Segments))
	for _, o := range observations {
		if i, ok := index[def.Rule(o, ctx)]; ok {
			buckets[i] = append(buckets[i], o)
		}
	}

	segments := make([]stats.CohortResult, 0, len(def.Segments))
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		segments = append(segments, a.analyzeSegment(def.Segments[i], bucket, ctx))
	}

	return stats.CohortReport{
		Definition: def.Name,
		Segments:   segments,
		Insights:   Insights(segments),
	}
}

func (a *Analyzer) analyzeSegment(name string, observations []experiment.Observation, ctx Context) stats.CohortResult {
	tracked := a.segments.Tracked()
	result := stats.CohortResult{
		Segment:     name,
		SampleSize:  len(observations),
		SuccessRate: aggregate.SuccessRate(observations),
		Metrics:     make([]stats.MetricSummary, 0, len(tracked)),
		Variance:    make(map[string]float64, len(tracked)),
	}
	for _, metric := range tracked {
		agg := a.segments.Aggregate(observations, metric)
		result.Metrics = append(result.Metrics, stats.MetricSummary{
			Metric:   metric,
			Mean:     agg.Mean,
			Variance: agg.Variance,
			N:        agg.Count,
		})
		result.Variance[metric] = agg.Variance
	}

	result.Comparison = a.compareVariants(observations, ctx)
	result.Recommendations = segmentRecommendations(result)
	return result
}

// compareVariants runs the experiment's family over the variants present in a
// segment. Returns nil when fewer than two variants appear.
func (a *Analyzer) compareVariants(observations []experiment.Observation, ctx Context) *stats.AnalysisResult {
	if a.engine == nil || len(ctx.Variants) < 2 {
		return nil
	}

	present := make([]core.VariantID, 0, len(ctx.Variants))
	seen := make(map[core.VariantID]bool)
	for _, o := range observations {
		seen[o.VariantID] = true
	}
	for _, v := range ctx.Variants {
		if seen[v] {
			present = append(present, v)
		}
	}
	if len(present) < 2 {
		return nil
	}

	family := ctx.Family
	if hypothesis.RequiresTwoGroups(family.Resolve(len(present))) && len(present) != 2 {
		family = stats.FamilyAuto
	}
	metric := ctx.Metric
	if metric == "" {
		metric = aggregate.MetricAccuracy
	}

	res, err := a.engine.Run(family, hypothesis.GroupsFromObservations(observations, present), metric, ctx.Alpha)
	if err != nil {
		return nil
	}
	return &res
}

// CompositeScore weighs accuracy 0.4, success rate 0.3 and cost 0.3 (cost scaled by 0.5)
func CompositeScore(r stats.CohortResult) float64 {
	return r.Metric(aggregate.MetricAccuracy).Mean*0.4 +
		r.SuccessRate*0.3 +
		(1-r.Metric(aggregate.MetricCost).Mean/costScale)*0.3
}

// Insights flags the best segment by composite score (only when positive), every
// segment under the accuracy floor, and every segment over the latency ceiling.
func Insights(segments []stats.CohortResult) []stats.Insight {
	insights := make([]stats.Insight, 0)

	best := -1
	bestScore := 0.0
	for i, s := range segments {
		if score := CompositeScore(s); score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best >= 0 {
		insights = append(insights, stats.Insight{
			Type:    stats.InsightBestPerforming,
			Cohort:  segments[best].Segment,
			Value:   bestScore,
			Message: fmt.Sprintf("Cohort %s shows best overall performance", segments[best].Segment),
		})
	}

	for _, s := range segments {
		if acc := s.Metric(aggregate.MetricAccuracy).Mean; acc < AccuracyFloor {
			insights = append(insights, stats.Insight{
				Type:    stats.InsightImprovementOpportunity,
				Cohort:  s.Segment,
				Metric:  aggregate.MetricAccuracy,
				Value:   acc,
				Message: fmt.Sprintf("Cohort %s has low accuracy, consider specialized optimization", s.Segment),
			})
		}
		if latency := s.Metric(aggregate.MetricLatency).Mean; latency > LatencyCeilingMs {
			insights = append(insights, stats.Insight{
				Type:    stats.InsightPerformanceIssue,
				Cohort:  s.Segment,
				Metric:  aggregate.MetricLatency,
				Value:   latency,
				Message: fmt.Sprintf("Cohort %s has high response times, consider faster models", s.Segment),
			})
		}
	}
	return insights
}

func segmentRecommendations(r stats.CohortResult) []string {
	var recs []string
	if r.Metric(aggregate.MetricAccuracy).Mean < AccuracyFloor {
		recs = append(recs, "Specialize variants for this segment to raise accuracy")
	}
	if r.Metric(aggregate.MetricLatency).Mean > LatencyCeilingMs {
		recs = append(recs, "Route this segment to faster models")
	}
	if r.Comparison != nil && r.Comparison.Valid && r.Comparison.Significant {
		recs = append(recs, "Variants differ significantly within this segment")
	}
	return recs
}
