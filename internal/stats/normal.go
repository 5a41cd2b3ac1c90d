package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Abramowitz & Stegun formula 7.1.26 coefficients (max abs error 1.5e-7).
const (
	erfA1 = 0.254829592
	erfA2 = -0.284496736
	erfA3 = 1.421413741
	erfA4 = -1.453152027
	erfA5 = 1.061405429
	erfP  = 0.3275911
)

// Erf approximates the error function with A&S 7.1.26
func Erf(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x)

	t := 1.0 / (1.0 + erfP*x)
	y := 1.0 - (((((erfA5*t+erfA4)*t)+erfA3)*t+erfA2)*t+erfA1)*t*math.Exp(-x*x)

	return sign * y
}

// NormalCDF is the standard normal CDF built on Erf
func NormalCDF(x float64) float64 {
	if math.IsInf(x, 1) {
		return 1
	}
	if math.IsInf(x, -1) {
		return 0
	}
	return 0.5 * (1 + Erf(x/math.Sqrt2))
}

// zTable holds upper-tail critical values for the common tail areas, ordered
// by decreasing tail area.
var zTable = []struct{ tail, z float64 }{
	{0.10, 1.282},
	{0.05, 1.645},
	{0.025, 1.96},
	{0.01, 2.326},
	{0.005, 2.576},
}

// ZScore returns the upper-tail critical value z such that P(Z > z) = alpha.
// Pass alpha/2 for a two-sided critical value. Common areas come from the table,
// anything else from the exact inverse normal clamped between the neighbouring
// table entries, so ZScore never increases with alpha.
func ZScore(alpha float64) float64 {
	rounded := roundTail(alpha)
	for _, p := range zTable {
		if rounded == p.tail {
			return p.z
		}
	}
	if alpha <= 0 || alpha >= 1 {
		return math.NaN()
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	for _, p := range zTable {
		if p.tail > alpha {
			lo = math.Max(lo, p.z)
		} else {
			hi = math.Min(hi, p.z)
		}
	}
	z := distuv.UnitNormal.Quantile(1 - alpha)
	return math.Min(math.Max(z, lo), hi)
}

// roundTail removes float noise such as 1-0.95 = 0.050000000000000044
func roundTail(alpha float64) float64 {
	return math.Round(alpha*1e9) / 1e9
}

// TwoSidedNormalP is 2·(1 − Φ(|z|))
func TwoSidedNormalP(z float64) float64 {
	return clampP(2 * (1 - NormalCDF(math.Abs(z))))
}

func clampP(p float64) float64 {
	if math.IsNaN(p) {
		return 1
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
