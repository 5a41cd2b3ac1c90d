package stats

import (
	"math"

	dstats "gosplit/domain/stats"
)

// ValidateNormality screens a sample for gross departures from normality:
// |skewness| < 2 and |kurtosis − 3| < 2. It advises on parametric vs rank tests
// and is not itself a significance test.
func ValidateNormality(data []float64) dstats.NormalityCheck {
	if len(data) < 3 {
		return dstats.NormalityCheck{
			Reason:         "Insufficient data",
			Recommendation: "Use non-parametric tests",
		}
	}

	mean := Mean(data)
	variance := Variance(data)
	skew := Skewness(data, mean, variance)
	kurt := Kurtosis(data, mean, variance)

	check := dstats.NormalityCheck{
		IsNormal: math.Abs(skew) < 2 && math.Abs(kurt-3) < 2,
		Skewness: skew,
		Kurtosis: kurt,
	}
	if check.IsNormal {
		check.Recommendation = "Use parametric tests"
	} else {
		check.Recommendation = "Use non-parametric tests"
	}
	return check
}

// ValidateHomoscedasticity applies the max/min variance ratio < 4 rule of thumb
func ValidateHomoscedasticity(group1, group2 []float64) dstats.VarianceCheck {
	v1 := Variance(group1)
	v2 := Variance(group2)

	ratio := 1.0
	lo, hi := math.Min(v1, v2), math.Max(v1, v2)
	switch {
	case lo > 0:
		ratio = hi / lo
	case hi > 0:
		ratio = math.Inf(1)
	}

	check := dstats.VarianceCheck{
		IsHomoscedastic: ratio < 4,
		FRatio:          ratio,
		Variance1:       v1,
		Variance2:       v2,
	}
	if check.IsHomoscedastic {
		check.Recommendation = "Equal variances assumption met"
	} else {
		check.Recommendation = "Consider Welch t-test"
	}
	return check
}
