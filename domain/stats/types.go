package stats

import (
	"fmt"
	"strings"

	"gosplit/domain/core"
)

// ============================================================================
// TEST FAMILIES
// ============================================================================

// TestFamily is the closed set of hypothesis test families the engine can run.
type TestFamily string

const (
	FamilyAuto        TestFamily = "auto"
	FamilyWelchT      TestFamily = "welch_ttest"
	FamilyChiSquare   TestFamily = "chi_square"
	FamilyMannWhitney TestFamily = "mann_whitney"
	FamilyANOVA       TestFamily = "anova"
	FamilyBayesian    TestFamily = "bayesian"
)

// AllFamilies lists every concrete family (auto excluded)
func AllFamilies() []TestFamily {
	return []TestFamily{FamilyWelchT, FamilyChiSquare, FamilyMannWhitney, FamilyANOVA, FamilyBayesian}
}

// ParseTestFamily resolves a family name. The upper-case template aliases
// (T_TEST, CHI_SQUARE, MANN_WHITNEY, ANOVA, BAYESIAN) are accepted too.
func ParseTestFamily(s string) (TestFamily, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO":
		return FamilyAuto, nil
	case "WELCH_TTEST", "T_TEST", "TTEST", "WELCH":
		return FamilyWelchT, nil
	case "CHI_SQUARE", "CHISQUARE":
		return FamilyChiSquare, nil
	case "MANN_WHITNEY", "MANNWHITNEY":
		return FamilyMannWhitney, nil
	case "ANOVA":
		return FamilyANOVA, nil
	case "BAYESIAN":
		return FamilyBayesian, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownTestFamily, s)
}

// Resolve maps auto to a concrete family given the number of variants:
// Welch's t-test for two variants, ANOVA for more.
func (f TestFamily) Resolve(variantCount int) TestFamily {
	if f != FamilyAuto && f != "" {
		return f
	}
	if variantCount > 2 {
		return FamilyANOVA
	}
	return FamilyWelchT
}

// ============================================================================
// ANALYSIS RESULTS
// ============================================================================

// GroupSummary holds the per-group inputs a test was computed from
type GroupSummary struct {
	Label    string  `json:"label"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	N        int     `json:"n"`
}

// CredibleInterval is a closed interval over the posterior
type CredibleInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Posterior summarises a normal-approximation posterior of a mean difference
type Posterior struct {
	MeanDifference   float64          `json:"mean_difference"`
	Variance         float64          `json:"variance"`
	Interval         CredibleInterval `json:"credible_interval"`
	ProbGroup1Better float64          `json:"probability_group1_better"`
	ProbGroup2Better float64          `json:"probability_group2_better"`
}

// AnalysisResult is the output of a single hypothesis test.
// INVARIANTS:
// - Valid=false results carry Reason and Recommendation and no statistics
// - Significant is PValue < Alpha
// - never mutated after construction
type AnalysisResult struct {
	Family           TestFamily         `json:"family"`
	Metric           string             `json:"metric,omitempty"`
	Valid            bool               `json:"valid"`
	Reason           string             `json:"reason,omitempty"`
	Recommendation   string             `json:"recommendation,omitempty"`
	Groups           []GroupSummary     `json:"groups,omitempty"`
	StatisticName    string             `json:"statistic_name,omitempty"`
	Statistic        float64            `json:"statistic"`
	DegreesOfFreedom float64            `json:"degrees_of_freedom,omitempty"`
	DF2              float64            `json:"df2,omitempty"` // denominator df for F
	PValue           float64            `json:"p_value"`
	Alpha            float64            `json:"alpha"`
	EffectSizeName   string             `json:"effect_size_name,omitempty"`
	EffectSize       float64            `json:"effect_size"`
	Significant      bool               `json:"significant"`
	Posterior        *Posterior         `json:"posterior,omitempty"`
	Details          map[string]float64 `json:"details,omitempty"`
	Interpretation   string             `json:"interpretation"`
}

// Invalid builds the soft "not enough data" result
func Invalid(family TestFamily, metric string, reason string) AnalysisResult {
	return AnalysisResult{
		Family:         family,
		Metric:         metric,
		Valid:          false,
		Reason:         reason,
		Recommendation: "Collect more samples",
		PValue:         1.0,
		Interpretation: "Insufficient data: " + reason + ". Collect more samples before drawing conclusions.",
	}
}

// ============================================================================
// ASSUMPTION CHECKS
// ============================================================================

// NormalityCheck is the outcome of the skewness/kurtosis screen of one group
type NormalityCheck struct {
	Label          string  `json:"label,omitempty"`
	IsNormal       bool    `json:"is_normal"`
	Skewness       float64 `json:"skewness"`
	Kurtosis       float64 `json:"kurtosis"`
	Reason         string  `json:"reason,omitempty"`
	Recommendation string  `json:"recommendation"`
}

// VarianceCheck is the outcome of the two-group variance-ratio screen
type VarianceCheck struct {
	IsHomoscedastic bool    `json:"is_homoscedastic"`
	FRatio          float64 `json:"f_ratio"`
	Variance1       float64 `json:"variance1"`
	Variance2       float64 `json:"variance2"`
	Recommendation  string  `json:"recommendation"`
}

// AssumptionChecks screens the analyzed metric for the parametric tests.
// Variance is only set for two groups.
type AssumptionChecks struct {
	Metric    string           `json:"metric"`
	Normality []NormalityCheck `json:"normality"`
	Variance  *VarianceCheck   `json:"variance,omitempty"`
}

// ParametricOK reports whether every group passed the normality screen
func (a AssumptionChecks) ParametricOK() bool {
	if len(a.Normality) == 0 {
		return false
	}
	for _, n := range a.Normality {
		if !n.IsNormal {
			return false
		}
	}
	return true
}

// ============================================================================
// POWER ANALYSIS
// ============================================================================

// PowerAnalysisResult reports whichever quantity was solved for
type PowerAnalysisResult struct {
	Alpha             float64 `json:"alpha"`
	Power             float64 `json:"power"`
	EffectSize        float64 `json:"effect_size"`
	SampleSize        int     `json:"sample_size"` // per group
	SolvedFor         string  `json:"solved_for"`  // sample_size | power | minimum_detectable_effect
	MinimumSampleSize int     `json:"minimum_sample_size,omitempty"`
	RawSampleSize     int     `json:"raw_sample_size,omitempty"` // before the minimum floor
}

// ============================================================================
// COHORTS
// ============================================================================

// MetricSummary is the mean/variance/n of one tracked metric inside a segment
type MetricSummary struct {
	Metric   string  `json:"metric"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	N        int     `json:"n"`
}

// CohortResult holds the analysis of one non-empty segment
type CohortResult struct {
	Segment         string             `json:"segment"`
	SampleSize      int                `json:"sample_size"`
	SuccessRate     float64            `json:"success_rate"`
	Metrics         []MetricSummary    `json:"metrics"`
	Variance        map[string]float64 `json:"variance_breakdown"`
	Comparison      *AnalysisResult    `json:"comparison,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// Metric returns the summary for name, or a zero summary
func (c CohortResult) Metric(name string) MetricSummary {
	for _, m := range c.Metrics {
		if m.Metric == name {
			return m
		}
	}
	return MetricSummary{Metric: name}
}

// InsightType classifies cross-segment findings
type InsightType string

const (
	InsightBestPerforming         InsightType = "BEST_PERFORMING_COHORT"
	InsightImprovementOpportunity InsightType = "IMPROVEMENT_OPPORTUNITY"
	InsightPerformanceIssue       InsightType = "PERFORMANCE_ISSUE"
)

// Insight is one independently testable cross-segment finding
type Insight struct {
	Type    InsightType `json:"type"`
	Cohort  string      `json:"cohort"`
	Metric  string      `json:"metric,omitempty"`
	Value   float64     `json:"value"`
	Message string      `json:"message"`
}

// CohortReport is the full output of a cohort analysis run
type CohortReport struct {
	Definition string         `json:"definition"`
	Segments   []CohortResult `json:"segments"`
	Insights   []Insight      `json:"insights"`
}
