// Package aggregate reduces raw observations into per-metric counts, means and
// variances. It never fails on empty input; callers decide whether a sample is
// large enough to test.
package aggregate

import (
	"math"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	istats "gosplit/internal/stats"
)

// Well-known metric names
const (
	MetricAccuracy   = "accuracy"
	MetricQuality    = "quality"
	MetricLatency    = "latency_ms"
	MetricCost       = "cost"
	MetricTokenCount = "token_count"
)

// Scope selects which observations contribute to a metric
type Scope int

const (
	// ScopeSuccessful uses only observations with Success=true
	ScopeSuccessful Scope = iota
	// ScopeAll uses every observation, failed trials included
	ScopeAll
)

func (s Scope) String() string {
	if s == ScopeAll {
		return "all"
	}
	return "successful"
}

// Aggregate is the reduction of one metric over a set of observations
type Aggregate struct {
	Metric   string  `json:"metric"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// StdDev is the square root of the variance
func (a Aggregate) StdDev() float64 {
	return math.Sqrt(a.Variance)
}

// Shape adds distribution-shape statistics on top of an Aggregate
type Shape struct {
	Aggregate
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Median   float64 `json:"median"`
	P95      float64 `json:"p95"`
}

// Aggregator knows which metrics are defined only for successful trials
type Aggregator struct {
	scopes       map[string]Scope
	defaultScope Scope
	tracked      []string
}

// NewAggregator returns an aggregator with the standard metric scopes:
// accuracy and quality over successful trials, latency, cost and token count over all.
// Unknown metrics default to successful trials.
func NewAggregator() *Aggregator {
	return &Aggregator{
		scopes: map[string]Scope{
			MetricAccuracy:   ScopeSuccessful,
			MetricQuality:    ScopeSuccessful,
			MetricLatency:    ScopeAll,
			MetricCost:       ScopeAll,
			MetricTokenCount: ScopeAll,
		},
		defaultScope: ScopeSuccessful,
		tracked:      []string{MetricAccuracy, MetricQuality, MetricLatency, MetricCost, MetricTokenCount},
	}
}

// WithScope registers (or overrides) the scope of a metric and tracks it
func (a *Aggregator) WithScope(metric string, scope Scope) *Aggregator {
	if _, known := a.scopes[metric]; !known {
		a.tracked = append(a.tracked, metric)
	}
	a.scopes[metric] = scope
	return a
}

// ScopeOf returns the observation scope used for metric
func (a *Aggregator) ScopeOf(metric string) Scope {
	if s, ok := a.scopes[metric]; ok {
		return s
	}
	return a.defaultScope
}

// Tracked lists the metrics summarised per variant, in a stable order
func (a *Aggregator) Tracked() []string {
	out := make([]string, len(a.tracked))
	copy(out, a.tracked)
	return out
}

// AllTrials returns a copy that reads every tracked metric over all
// observations, failed trials included (absent values count as 0).
func (a *Aggregator) AllTrials() *Aggregator {
	scopes := make(map[string]Scope, len(a.scopes))
	for metric := range a.scopes {
		scopes[metric] = ScopeAll
	}
	return &Aggregator{scopes: scopes, defaultScope: ScopeAll, tracked: a.Tracked()}
}

// Values extracts the in-scope values of metric. Absent metrics count as 0.
func (a *Aggregator) Values(observations []experiment.Observation, metric string) []float64 {
	scope := a.ScopeOf(metric)
	values := make([]float64, 0, len(observations))
	for _, o := range observations {
		if scope == ScopeSuccessful && !o.Success {
			continue
		}
		values = append(values, o.Metric(metric))
	}
	return values
}

// Aggregate reduces metric over observations
func (a *Aggregator) Aggregate(observations []experiment.Observation, metric string) Aggregate {
	return FromValues(metric, a.Values(observations, metric))
}

// Shape reduces metric and adds skewness, kurtosis, median and p95
func (a *Aggregator) Shape(observations []experiment.Observation, metric string) Shape {
	values := a.Values(observations, metric)
	agg := FromValues(metric, values)
	return Shape{
		Aggregate: agg,
		Skewness:  istats.Skewness(values, agg.Mean, agg.Variance),
		Kurtosis:  istats.Kurtosis(values, agg.Mean, agg.Variance),
		Median:    istats.Median(values),
		P95:       istats.Percentile(values, 95),
	}
}

// FromValues builds an Aggregate from already-extracted values
func FromValues(metric string, values []float64) Aggregate {
	return Aggregate{
		Metric:   metric,
		Count:    len(values),
		Mean:     istats.Mean(values),
		Variance: istats.Variance(values),
	}
}

// GroupByVariant partitions observations by variant, preserving the order of
// variants and the append order of observations inside each group.
// Variants with no observations get an empty group.
func GroupByVariant(observations []experiment.Observation, variants []core.VariantID) [][]experiment.Observation {
	index := make(map[core.VariantID]int, len(variants))
	for i, v := range variants {
		index[v] = i
	}
	groups := make([][]experiment.Observation, len(variants))
	for _, o := range observations {
		if i, ok := index[o.VariantID]; ok {
			groups[i] = append(groups[i], o)
		}
	}
	return groups
}

// SuccessRate is successes over total, 0 for empty input
func SuccessRate(observations []experiment.Observation) float64 {
	if len(observations) == 0 {
		return 0
	}
	return float64(CountSuccessful(observations)) / float64(len(observations))
}

// CountSuccessful counts observations with Success=true
func CountSuccessful(observations []experiment.Observation) int {
	n := 0
	for _, o := range observations {
		if o.Success {
			n++
		}
	}
	return n
}

// Summarize builds the descriptive block for one variant: sample counts,
// success rate, and mean, variance and 95% interval for every tracked metric.
func (a *Aggregator) Summarize(variant core.VariantID, observations []experiment.Observation) experiment.VariantSummary {
	summary := experiment.VariantSummary{
		VariantID:           variant,
		SampleSize:          len(observations),
		SuccessfulSamples:   CountSuccessful(observations),
		SuccessRate:         SuccessRate(observations),
		Means:               make(map[string]float64, len(a.tracked)),
		Variances:           make(map[string]float64, len(a.tracked)),
		ConfidenceIntervals: make(map[string]stats.CredibleInterval, len(a.tracked)),
	}
	for _, metric := range a.tracked {
		values := a.Values(observations, metric)
		agg := FromValues(metric, values)
		lo, hi := istats.ConfidenceInterval(values, 0.95)
		summary.Means[metric] = agg.Mean
		summary.Variances[metric] = agg.Variance
		summary.ConfidenceIntervals[metric] = stats.CredibleInterval{Lower: lo, Upper: hi}
	}
	return summary
}
