package hypothesis

import (
	"fmt"
	"math"

	"gosplit/domain/stats"
	istats "gosplit/internal/stats"
)

// ANOVATest is a one-way analysis of variance across two or more groups
type ANOVATest struct{}

// NewANOVATest creates a one-way ANOVA
func NewANOVATest() *ANOVATest {
	return &ANOVATest{}
}

// Name returns the family name
func (a *ANOVATest) Name() string {
	return string(stats.FamilyANOVA)
}

// Description returns a human-readable description
func (a *ANOVATest) Description() string {
	return "Detects differences among the means of two or more groups"
}

// Compare computes F = MSB/MSW with df (k−1, N−k). At least 3 values overall
// and MinGroupSize per group are required.
func (a *ANOVATest) Compare(groups []Group, metric string, opts Options) stats.AnalysisResult {
	opts = opts.normalized()
	need := opts.minimum(1)

	sizes := make([]int, len(groups))
	all := make([]float64, 0)
	short := false
	for i, g := range groups {
		sizes[i] = len(g.Values)
		if len(g.Values) < need {
			short = true
		}
		all = append(all, g.Values...)
	}
	if len(groups) < 2 || short {
		return insufficient(stats.FamilyANOVA, metric, "ANOVA", need, sizes...)
	}
	if len(all) < 3 {
		return stats.Invalid(stats.FamilyANOVA, metric,
			fmt.Sprintf("insufficient data for ANOVA: need at least 3 samples overall, got %d", len(all)))
	}

	grandMean := istats.Mean(all)
	k := float64(len(groups))
	total := float64(len(all))

	summaries := make([]stats.GroupSummary, len(groups))
	ssb, ssw := 0.0, 0.0
	for i, g := range groups {
		s := g.summary()
		summaries[i] = s
		ssb += float64(s.N) * math.Pow(s.Mean-grandMean, 2)
		for _, v := range g.Values {
			ssw += math.Pow(v-s.Mean, 2)
		}
	}

	dfb := k - 1
	dfw := total - k
	if dfw <= 0 {
		return stats.Invalid(stats.FamilyANOVA, metric, "insufficient data for ANOVA: no within-group degrees of freedom")
	}
	msb := ssb / dfb
	msw := ssw / dfw
	if msw == 0 {
		return stats.Invalid(stats.FamilyANOVA, metric, "no variance within groups, F statistic is undefined")
	}

	f := msb / msw
	pValue := opts.Tails.FUpper(f, dfb, dfw)
	etaSquared := ssb / (ssb + ssw)

	significant := pValue < opts.Alpha
	return stats.AnalysisResult{
		Family:           stats.FamilyANOVA,
		Metric:           metric,
		Valid:            true,
		Groups:           summaries,
		StatisticName:    "F",
		Statistic:        f,
		DegreesOfFreedom: dfb,
		DF2:              dfw,
		PValue:           pValue,
		Alpha:            opts.Alpha,
		EffectSizeName:   "eta_squared",
		EffectSize:       etaSquared,
		Significant:      significant,
		Details: map[string]float64{
			"ssb": ssb,
			"ssw": ssw,
			"msb": msb,
			"msw": msw,
		},
		Interpretation: interpretGroups(summaries, significant),
	}
}

func interpretGroups(summaries []stats.GroupSummary, significant bool) string {
	if !significant {
		return "No significant difference between groups"
	}
	best := 0
	for i, s := range summaries {
		if s.Mean > summaries[best].Mean {
			best = i
		}
	}
	return fmt.Sprintf("Significant difference between groups. Highest mean: %s.", groupName(best+1, summaries[best].Label))
}
