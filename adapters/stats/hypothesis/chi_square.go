package hypothesis

import (
	"fmt"
	"math"

	"gosplit/domain/core"
	"gosplit/domain/stats"
)

// ChiSquareTest compares observed frequencies against expected ones
type ChiSquareTest struct{}

// NewChiSquareTest creates a chi-square test
func NewChiSquareTest() *ChiSquareTest {
	return &ChiSquareTest{}
}

// Name returns the family name
func (c *ChiSquareTest) Name() string {
	return string(stats.FamilyChiSquare)
}

// Description returns a human-readable description
func (c *ChiSquareTest) Description() string {
	return "Detects differences between observed and expected frequency distributions"
}

// GoodnessOfFit computes χ² = Σ (O−E)²/E with df = len−1. Mismatched lengths and
// non-positive expected cells are caller defects and return an error.
func (c *ChiSquareTest) GoodnessOfFit(observed, expected []float64, opts Options) (stats.AnalysisResult, error) {
	opts = opts.normalized()
	if len(observed) != len(expected) {
		return stats.AnalysisResult{}, fmt.Errorf("%w: observed has %d cells, expected has %d",
			core.ErrLengthMismatch, len(observed), len(expected))
	}
	for i, e := range expected {
		if e <= 0 {
			return stats.AnalysisResult{}, core.NewValidationError("expected",
				fmt.Sprintf("cell %d must be positive, got %v", i, e))
		}
	}
	if len(observed) < 2 {
		return stats.Invalid(stats.FamilyChiSquare, "", "at least two frequency cells are required"), nil
	}

	chi := chiSquareStatistic(observed, expected)
	df := float64(len(observed) - 1)
	pValue := opts.Tails.ChiSquareUpper(chi, df)

	total := 0.0
	for _, o := range observed {
		total += o
	}
	effect := 0.0
	if total > 0 {
		effect = math.Sqrt(chi / total)
	}

	significant := pValue < opts.Alpha
	return stats.AnalysisResult{
		Family:           stats.FamilyChiSquare,
		Valid:            true,
		StatisticName:    "chi_square",
		Statistic:        chi,
		DegreesOfFreedom: df,
		PValue:           pValue,
		Alpha:            opts.Alpha,
		EffectSizeName:   "cohens_w",
		EffectSize:       effect,
		Significant:      significant,
		Interpretation:   interpretDistribution(significant),
	}, nil
}

// CompareProportions tests whether success rates differ across groups using the
// 2×k contingency table of successes and failures (df = k−1).
func (c *ChiSquareTest) CompareProportions(groups []Proportion, opts Options) stats.AnalysisResult {
	const metric = "success"
	opts = opts.normalized()
	need := opts.minimum(2)

	sizes := make([]int, len(groups))
	short := false
	totalS, totalN := 0, 0
	for i, g := range groups {
		sizes[i] = g.Trials
		if g.Trials < need {
			short = true
		}
		totalS += g.Successes
		totalN += g.Trials
	}
	if len(groups) < 2 || short {
		return insufficient(stats.FamilyChiSquare, metric, "chi-square", need, sizes...)
	}

	pooled := float64(totalS) / float64(totalN)
	if pooled == 0 || pooled == 1 {
		return stats.Invalid(stats.FamilyChiSquare, metric, "success rate is constant across all groups")
	}

	observed := make([]float64, 0, 2*len(groups))
	expected := make([]float64, 0, 2*len(groups))
	summaries := make([]stats.GroupSummary, len(groups))
	for i, g := range groups {
		n := float64(g.Trials)
		s := float64(g.Successes)
		observed = append(observed, s, n-s)
		expected = append(expected, n*pooled, n*(1-pooled))

		rate := s / n
		summaries[i] = stats.GroupSummary{Label: g.Label, Mean: rate, Variance: rate * (1 - rate), N: g.Trials}
	}

	chi := chiSquareStatistic(observed, expected)
	df := float64(len(groups) - 1)
	pValue := opts.Tails.ChiSquareUpper(chi, df)

	// Cramér's V for a 2×k table reduces to sqrt(χ²/N)
	effect := math.Sqrt(chi / float64(totalN))

	significant := pValue < opts.Alpha
	return stats.AnalysisResult{
		Family:           stats.FamilyChiSquare,
		Metric:           metric,
		Valid:            true,
		Groups:           summaries,
		StatisticName:    "chi_square",
		Statistic:        chi,
		DegreesOfFreedom: df,
		PValue:           pValue,
		Alpha:            opts.Alpha,
		EffectSizeName:   "cramers_v",
		EffectSize:       effect,
		Significant:      significant,
		Details:          map[string]float64{"pooled_success_rate": pooled},
		Interpretation:   interpretDistribution(significant),
	}
}

func chiSquareStatistic(observed, expected []float64) float64 {
	chi := 0.0
	for i := range observed {
		diff := observed[i] - expected[i]
		chi += diff * diff / expected[i]
	}
	return chi
}

func interpretDistribution(significant bool) string {
	if significant {
		return "Significant difference in distribution"
	}
	return "No significant difference in distribution"
}
