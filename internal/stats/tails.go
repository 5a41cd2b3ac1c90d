package stats

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// TailStrategy turns test statistics into p-values. The approximate strategy
// is the default; the exact strategy is available when true distributions are wanted.
type TailStrategy interface {
	Name() string
	// TwoSidedT is the two-sided p-value of a t statistic with df degrees of freedom
	TwoSidedT(t, df float64) float64
	// ChiSquareUpper is P(X > x) for a chi-square with df degrees of freedom
	ChiSquareUpper(x, df float64) float64
	// FUpper is P(F > f) for an F(df1, df2)
	FUpper(f, df1, df2 float64) float64
}

// ApproximateTails reproduces the closed-form approximations:
//   - t with df >= 30: normal approximation
//   - t with df < 30: Gaussian tail min(1, 2·exp(-t²/2)), not an exact Student-t
//   - chi-square and F: exp(-x/2) regardless of degrees of freedom
type ApproximateTails struct{}

// Name identifies the strategy
func (ApproximateTails) Name() string { return "approximate" }

// TwoSidedT approximates the two-sided t p-value
func (ApproximateTails) TwoSidedT(t, df float64) float64 {
	t = math.Abs(t)
	if df >= 30 {
		return TwoSidedNormalP(t)
	}
	return clampP(math.Min(1, 2*math.Exp(-0.5*t*t)))
}

// ChiSquareUpper approximates the chi-square upper tail
func (ApproximateTails) ChiSquareUpper(x, df float64) float64 {
	return clampP(math.Exp(-x / 2))
}

// FUpper approximates the F upper tail
func (ApproximateTails) FUpper(f, df1, df2 float64) float64 {
	return clampP(math.Exp(-f / 2))
}

// ExactTails uses the true Student-t, chi-square and F distributions
type ExactTails struct{}

// Name identifies the strategy
func (ExactTails) Name() string { return "exact" }

// TwoSidedT computes the exact two-sided p-value from Student's t
func (ExactTails) TwoSidedT(t, df float64) float64 {
	if df <= 0 || math.IsNaN(df) {
		return 1
	}
	if math.IsInf(t, 0) {
		return 0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return clampP(2 * (1 - dist.CDF(math.Abs(t))))
}

// ChiSquareUpper computes the exact chi-square survival function
func (ExactTails) ChiSquareUpper(x, df float64) float64 {
	if df <= 0 {
		return 1
	}
	if x <= 0 {
		return 1
	}
	dist := distuv.ChiSquared{K: df}
	return clampP(dist.Survival(x))
}

// FUpper computes the exact F survival function
func (ExactTails) FUpper(f, df1, df2 float64) float64 {
	if df1 <= 0 || df2 <= 0 {
		return 1
	}
	if f <= 0 {
		return 1
	}
	if math.IsInf(f, 1) {
		return 0
	}
	dist := distuv.F{D1: df1, D2: df2}
	return clampP(dist.Survival(f))
}

// TailsByName resolves a strategy name, defaulting to approximate
func TailsByName(name string) TailStrategy {
	if strings.EqualFold(strings.TrimSpace(name), ExactTails{}.Name()) {
		return ExactTails{}
	}
	return ApproximateTails{}
}
