package hypothesis

import (
	"math"

	"gosplit/domain/stats"
)

// WelchTTest compares two group means without assuming equal variances
type WelchTTest struct{}

// NewWelchTTest creates a Welch's t-test
func NewWelchTTest() *WelchTTest {
	return &WelchTTest{}
}

// Name returns the family name
func (w *WelchTTest) Name() string {
	return string(stats.FamilyWelchT)
}

// Description returns a human-readable description
func (w *WelchTTest) Description() string {
	return "Detects significant differences between two group means with unequal variances"
}

// Compare performs Welch's t-test of g1 against g2.
// Cohen's d is signed: positive when g1 has the higher mean.
func (w *WelchTTest) Compare(g1, g2 Group, metric string, opts Options) stats.AnalysisResult {
	opts = opts.normalized()
	need := opts.minimum(2)
	if len(g1.Values) < need || len(g2.Values) < need {
		return insufficient(stats.FamilyWelchT, metric, "Welch's t-test", need, len(g1.Values), len(g2.Values))
	}

	s1, s2 := g1.summary(), g2.summary()
	n1, n2 := float64(s1.N), float64(s2.N)

	// Welch's t-statistic: t = (mean1 - mean2) / sqrt(var1/n1 + var2/n2)
	se := math.Sqrt(s1.Variance/n1 + s2.Variance/n2)
	if se == 0 {
		return stats.Invalid(stats.FamilyWelchT, metric, "no variance within either group, t statistic is undefined")
	}
	tStat := (s1.Mean - s2.Mean) / se

	// Degrees of freedom using Welch-Satterthwaite equation
	df := math.Pow(s1.Variance/n1+s2.Variance/n2, 2) /
		(math.Pow(s1.Variance/n1, 2)/(n1-1) + math.Pow(s2.Variance/n2, 2)/(n2-1))
	if math.IsNaN(df) || math.IsInf(df, 0) {
		df = n1 + n2 - 2
	}

	pValue := opts.Tails.TwoSidedT(tStat, df)

	// Effect size (Cohen's d with pooled standard deviation)
	pooledSD := math.Sqrt(((n1-1)*s1.Variance + (n2-1)*s2.Variance) / (n1 + n2 - 2))
	effect := (s1.Mean - s2.Mean) / pooledSD

	significant := pValue < opts.Alpha
	return stats.AnalysisResult{
		Family:           stats.FamilyWelchT,
		Metric:           metric,
		Valid:            true,
		Groups:           []stats.GroupSummary{s1, s2},
		StatisticName:    "t",
		Statistic:        tStat,
		DegreesOfFreedom: df,
		PValue:           pValue,
		Alpha:            opts.Alpha,
		EffectSizeName:   "cohens_d",
		EffectSize:       effect,
		Significant:      significant,
		Details: map[string]float64{
			"standard_error": se,
			"pooled_sd":      pooledSD,
		},
		Interpretation: interpretMeans(s1, s2, significant, effect),
	}
}

// interpretMeans describes a two-group mean comparison
func interpretMeans(s1, s2 stats.GroupSummary, significant bool, effect float64) string {
	if !significant {
		return "No statistically significant difference detected. Consider collecting more data."
	}

	better, worse := groupName(1, s1.Label), groupName(2, s2.Label)
	if s2.Mean > s1.Mean {
		better, worse = groupName(2, s2.Label), groupName(1, s1.Label)
	}
	return "Statistically significant difference detected. " +
		better + " performs better than " + worse + ". " +
		effectLabel(effect) + " effect size."
}
