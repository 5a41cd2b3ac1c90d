package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndVariance(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		mean     float64
		variance float64
	}{
		{"empty", nil, 0, 0},
		{"single", []float64{4}, 4, 0},
		{"pair", []float64{1, 3}, 2, 2},
		{"bessel corrected", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 5, 32.0 / 7.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.mean, Mean(tt.data), 1e-12)
			assert.InDelta(t, tt.variance, Variance(tt.data), 1e-12)
		})
	}
}

func TestShapeDefaults(t *testing.T) {
	assert.Equal(t, 0.0, Skewness([]float64{1, 2}, 1.5, 0.5))
	assert.Equal(t, 3.0, Kurtosis([]float64{1, 2, 3}, 2, 1))
	assert.Equal(t, 0.0, Skewness([]float64{5, 5, 5, 5}, 5, 0))
}

func TestSkewnessSymmetric(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7}
	assert.InDelta(t, 0, Skewness(data, Mean(data), Variance(data)), 1e-12)
}

func TestErfAndNormalCDF(t *testing.T) {
	assert.InDelta(t, 0, Erf(0), 1e-7)
	assert.InDelta(t, math.Erf(1), Erf(1), 2e-7)
	assert.InDelta(t, math.Erf(-0.5), Erf(-0.5), 2e-7)

	assert.InDelta(t, 0.5, NormalCDF(0), 1e-7)
	assert.InDelta(t, 0.975, NormalCDF(1.96), 1e-4)
	assert.InDelta(t, 0.025, NormalCDF(-1.96), 1e-4)
	assert.Equal(t, 1.0, NormalCDF(math.Inf(1)))
	assert.Equal(t, 0.0, NormalCDF(math.Inf(-1)))
}

func TestZScoreTable(t *testing.T) {
	assert.Equal(t, 1.282, ZScore(0.10))
	assert.Equal(t, 1.645, ZScore(0.05))
	assert.Equal(t, 1.96, ZScore(0.025))
	assert.Equal(t, 2.326, ZScore(0.01))
	assert.Equal(t, 2.576, ZScore(0.005))
	// float noise from 1-0.95 still hits the table
	assert.Equal(t, 1.645, ZScore(1-0.95))
}

func TestZScoreFallback(t *testing.T) {
	// 1 - 0.80 power is not a table entry
	assert.InDelta(t, 0.8416, ZScore(0.20), 1e-3)
	assert.InDelta(t, 1.0364, ZScore(0.15), 1e-3)
	assert.True(t, math.IsNaN(ZScore(0)))
}

func TestZScoreMonotoneAroundTable(t *testing.T) {
	assert.GreaterOrEqual(t, ZScore(0.04999), ZScore(0.05))
	assert.GreaterOrEqual(t, ZScore(0.09999), ZScore(0.10))
	assert.LessOrEqual(t, ZScore(0.01001), ZScore(0.01))

	prev := ZScore(0.5)
	for alpha := 0.4999; alpha > 0.001; alpha -= 0.0001 {
		z := ZScore(alpha)
		require.GreaterOrEqual(t, z, prev, "alpha=%v", alpha)
		prev = z
	}
}

func TestPercentileAndMedian(t *testing.T) {
	data := []float64{5, 1, 3, 2, 4}
	assert.Equal(t, 3.0, Median(data))
	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Equal(t, 0.0, Median(nil))
}

func TestConfidenceInterval(t *testing.T) {
	lo, hi := ConfidenceInterval(nil, 0.95)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)

	data := []float64{1, 2, 3, 4, 5}
	lo, hi = ConfidenceInterval(data, 0.95)
	se := StdDev(data) / math.Sqrt(5)
	assert.InDelta(t, 3-1.96*se, lo, 1e-12)
	assert.InDelta(t, 3+1.96*se, hi, 1e-12)
}

func TestApproximateTails(t *testing.T) {
	tails := ApproximateTails{}

	t.Run("large df uses normal", func(t *testing.T) {
		assert.InDelta(t, 0.05, tails.TwoSidedT(1.96, 40), 1e-3)
	})

	t.Run("small df uses gaussian tail", func(t *testing.T) {
		assert.InDelta(t, 2*math.Exp(-2), tails.TwoSidedT(2, 10), 1e-12)
		assert.Equal(t, 1.0, tails.TwoSidedT(0.5, 10))
	})

	t.Run("chi-square and F ignore df", func(t *testing.T) {
		assert.InDelta(t, math.Exp(-3), tails.ChiSquareUpper(6, 1), 1e-12)
		assert.InDelta(t, math.Exp(-3), tails.ChiSquareUpper(6, 9), 1e-12)
		assert.InDelta(t, math.Exp(-2), tails.FUpper(4, 2, 30), 1e-12)
		assert.Equal(t, 0.0, tails.FUpper(math.Inf(1), 1, 1))
	})
}

func TestExactTails(t *testing.T) {
	tails := ExactTails{}

	assert.InDelta(t, 0.05, tails.TwoSidedT(2.228, 10), 1e-3)
	assert.InDelta(t, 0.05, tails.ChiSquareUpper(3.841, 1), 1e-3)
	assert.InDelta(t, 0.05, tails.FUpper(4.965, 1, 10), 1e-3)
	assert.Equal(t, 1.0, tails.TwoSidedT(1, 0))
	assert.Equal(t, 0.0, tails.FUpper(math.Inf(1), 1, 10))
}

func TestTailsByName(t *testing.T) {
	assert.Equal(t, "exact", TailsByName("exact").Name())
	assert.Equal(t, "exact", TailsByName(" Exact ").Name())
	assert.Equal(t, "approximate", TailsByName("").Name())
	assert.Equal(t, "approximate", TailsByName("bogus").Name())
}

func TestValidateNormality(t *testing.T) {
	small := ValidateNormality([]float64{1, 2})
	assert.False(t, small.IsNormal)
	assert.Equal(t, "Insufficient data", small.Reason)

	symmetric := ValidateNormality([]float64{1, 2, 2, 3, 3, 3, 4, 4, 5})
	assert.True(t, symmetric.IsNormal)
	assert.Equal(t, "Use parametric tests", symmetric.Recommendation)

	skewed := ValidateNormality([]float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 100})
	assert.False(t, skewed.IsNormal)
	assert.Equal(t, "Use non-parametric tests", skewed.Recommendation)
}

func TestValidateHomoscedasticity(t *testing.T) {
	equal := ValidateHomoscedasticity([]float64{1, 2, 3}, []float64{4, 5, 6})
	assert.True(t, equal.IsHomoscedastic)
	assert.InDelta(t, 1.0, equal.FRatio, 1e-12)

	unequal := ValidateHomoscedasticity([]float64{1, 2, 3}, []float64{0, 10, 20})
	assert.False(t, unequal.IsHomoscedastic)
	assert.Equal(t, "Consider Welch t-test", unequal.Recommendation)

	degenerate := ValidateHomoscedasticity([]float64{1, 1}, []float64{1, 2})
	assert.True(t, math.IsInf(degenerate.FRatio, 1))
}
