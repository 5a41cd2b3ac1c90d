package hypothesis

import (
	"math"

	"gosplit/domain/stats"
	istats "gosplit/internal/stats"
)

// credibleMass is the posterior mass covered by the reported interval
const credibleMass = 0.95

// BayesianTest approximates the posterior of a difference in means with a normal
// distribution built from each group's sample mean and variance. No prior is applied.
type BayesianTest struct{}

// NewBayesianTest creates a Bayesian difference-of-means test
func NewBayesianTest() *BayesianTest {
	return &BayesianTest{}
}

// Name returns the family name
func (b *BayesianTest) Name() string {
	return string(stats.FamilyBayesian)
}

// Description returns a human-readable description
func (b *BayesianTest) Description() string {
	return "Estimates the probability that one group outperforms the other"
}

// Compare reports the posterior of mean(g1) − mean(g2). PValue is the two-sided
// posterior tail 2·min(P, 1−P) so Significant keeps the usual p < α meaning.
func (b *BayesianTest) Compare(g1, g2 Group, metric string, opts Options) stats.AnalysisResult {
	opts = opts.normalized()
	need := opts.minimum(2)
	if len(g1.Values) < need || len(g2.Values) < need {
		return insufficient(stats.FamilyBayesian, metric, "Bayesian analysis", need, len(g1.Values), len(g2.Values))
	}

	s1, s2 := g1.summary(), g2.summary()
	n1, n2 := float64(s1.N), float64(s2.N)

	diff := s1.Mean - s2.Mean
	variance := s1.Variance/n1 + s2.Variance/n2
	sd := math.Sqrt(variance)
	if sd == 0 {
		return stats.Invalid(stats.FamilyBayesian, metric, "no variance within either group, posterior is degenerate")
	}

	z := istats.ZScore((1 - credibleMass) / 2)
	interval := stats.CredibleInterval{Lower: diff - z*sd, Upper: diff + z*sd}

	probGroup1Better := 1 - istats.NormalCDF(-diff/sd)
	pValue := 2 * math.Min(probGroup1Better, 1-probGroup1Better)

	pooledSD := math.Sqrt(((n1-1)*s1.Variance + (n2-1)*s2.Variance) / (n1 + n2 - 2))

	return stats.AnalysisResult{
		Family:         stats.FamilyBayesian,
		Metric:         metric,
		Valid:          true,
		Groups:         []stats.GroupSummary{s1, s2},
		StatisticName:  "posterior_z",
		Statistic:      diff / sd,
		PValue:         pValue,
		Alpha:          opts.Alpha,
		EffectSizeName: "cohens_d",
		EffectSize:     diff / pooledSD,
		Significant:    pValue < opts.Alpha,
		Posterior: &stats.Posterior{
			MeanDifference:   diff,
			Variance:         variance,
			Interval:         interval,
			ProbGroup1Better: probGroup1Better,
			ProbGroup2Better: 1 - probGroup1Better,
		},
		Interpretation: interpretPosterior(probGroup1Better, interval),
	}
}

func interpretPosterior(probGroup1Better float64, interval stats.CredibleInterval) string {
	var interpretation string
	switch {
	case probGroup1Better > 0.95:
		interpretation = "Very strong evidence that Group 1 is better."
	case probGroup1Better > 0.90:
		interpretation = "Strong evidence that Group 1 is better."
	case probGroup1Better > 0.80:
		interpretation = "Moderate evidence that Group 1 is better."
	case probGroup1Better < 0.10:
		interpretation = "Very strong evidence that Group 2 is better."
	case probGroup1Better < 0.20:
		interpretation = "Strong evidence that Group 2 is better."
	default:
		interpretation = "Inconclusive evidence. Consider collecting more data."
	}

	switch {
	case interval.Lower > 0:
		interpretation += " The entire credible interval is positive."
	case interval.Upper < 0:
		interpretation += " The entire credible interval is negative."
	default:
		interpretation += " The credible interval includes zero."
	}
	return interpretation
}
