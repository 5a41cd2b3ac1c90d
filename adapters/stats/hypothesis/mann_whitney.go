package hypothesis

import (
	"fmt"
	"math"
	"sort"

	"gosplit/domain/stats"
	istats "gosplit/internal/stats"
)

// MannWhitneyTest is the rank-based alternative to the t-test
type MannWhitneyTest struct{}

// NewMannWhitneyTest creates a Mann-Whitney U test
func NewMannWhitneyTest() *MannWhitneyTest {
	return &MannWhitneyTest{}
}

// Name returns the family name
func (m *MannWhitneyTest) Name() string {
	return string(stats.FamilyMannWhitney)
}

// Description returns a human-readable description
func (m *MannWhitneyTest) Description() string {
	return "Detects differences between two groups without assuming normality"
}

type rankedValue struct {
	value float64
	group int
}

// Compare runs the U test with the normal approximation. Ranks are assigned
// sequentially after a stable sort; ties are not averaged.
func (m *MannWhitneyTest) Compare(g1, g2 Group, metric string, opts Options) stats.AnalysisResult {
	opts = opts.normalized()
	need := opts.minimum(2)
	if len(g1.Values) < need || len(g2.Values) < need {
		return insufficient(stats.FamilyMannWhitney, metric, "Mann-Whitney U", need, len(g1.Values), len(g2.Values))
	}

	combined := make([]rankedValue, 0, len(g1.Values)+len(g2.Values))
	for _, v := range g1.Values {
		combined = append(combined, rankedValue{value: v, group: 1})
	}
	for _, v := range g2.Values {
		combined = append(combined, rankedValue{value: v, group: 2})
	}
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].value < combined[j].value
	})

	rankSum1 := 0.0
	for i, item := range combined {
		if item.group == 1 {
			rankSum1 += float64(i + 1)
		}
	}

	n1 := float64(len(g1.Values))
	n2 := float64(len(g2.Values))
	u1 := rankSum1 - n1*(n1+1)/2
	u2 := n1*n2 - u1
	u := math.Min(u1, u2)

	meanU := n1 * n2 / 2
	sdU := math.Sqrt(n1 * n2 * (n1 + n2 + 1) / 12)
	z := (u - meanU) / sdU
	pValue := istats.TwoSidedNormalP(z)

	// rank-biserial correlation, positive when group 1 ranks higher
	effect := (u1 - u2) / (n1 * n2)

	significant := pValue < opts.Alpha
	return stats.AnalysisResult{
		Family:         stats.FamilyMannWhitney,
		Metric:         metric,
		Valid:          true,
		Groups:         []stats.GroupSummary{g1.summary(), g2.summary()},
		StatisticName:  "U",
		Statistic:      u,
		PValue:         pValue,
		Alpha:          opts.Alpha,
		EffectSizeName: "rank_biserial",
		EffectSize:     effect,
		Significant:    significant,
		Details: map[string]float64{
			"u1":        u1,
			"u2":        u2,
			"z":         z,
			"rank_sum1": rankSum1,
		},
		Interpretation: interpretRanks(g1.Label, g2.Label, significant, effect),
	}
}

func interpretRanks(label1, label2 string, significant bool, effect float64) string {
	if !significant {
		return "No significant difference between groups"
	}
	higher := groupName(1, label1)
	if effect < 0 {
		higher = groupName(2, label2)
	}
	return fmt.Sprintf("Significant difference between groups. %s tends to rank higher.", higher)
}
