// Package power solves the two-sample power relation n = 2·(z_{α/2} + z_{1−power})² / d²
// for whichever of sample size, power or minimum detectable effect is missing.
package power

import (
	"fmt"
	"math"

	"gosplit/domain/core"
	"gosplit/domain/stats"
	istats "gosplit/internal/stats"
)

// DefaultMinimumSampleSize floors CalculateSampleSize when no minimum is given
const DefaultMinimumSampleSize = 30

// Solve targets
const (
	SolveSampleSize = "sample_size"
	SolvePower      = "power"
	SolveEffect     = "minimum_detectable_effect"
)

// Request names the known quantities. Zero means "solve for this one";
// exactly one of SampleSize, EffectSize and Power must be zero.
type Request struct {
	Alpha      float64 `json:"alpha" binding:"omitempty,gt=0,lt=1"`
	Power      float64 `json:"power" binding:"omitempty,gt=0,lt=1"`
	EffectSize float64 `json:"effect_size" binding:"omitempty,gt=0"`
	SampleSize int     `json:"sample_size" binding:"omitempty,gte=2"`
	Minimum    int     `json:"minimum_sample_size" binding:"omitempty,gte=0"`
}

func validAlpha(alpha float64) error {
	if alpha <= 0 || alpha >= 1 {
		return core.NewValidationError("alpha", fmt.Sprintf("must be in (0, 1), got %v", alpha))
	}
	return nil
}

func validPower(power float64) error {
	if power <= 0 || power >= 1 {
		return core.NewValidationError("power", fmt.Sprintf("must be in (0, 1), got %v", power))
	}
	return nil
}

// zSum is z_{α/2} + z_{1−power}
func zSum(alpha, power float64) float64 {
	return istats.ZScore(alpha/2) + istats.ZScore(1-power)
}

// CalculateSampleSize returns the per-group sample size needed to detect effectSize
// (Cohen's d) at the given alpha and power, rounded up and floored at minimum
// (DefaultMinimumSampleSize when minimum <= 0).
func CalculateSampleSize(effectSize, alpha, power float64, minimum int) (stats.PowerAnalysisResult, error) {
	if effectSize <= 0 || math.IsNaN(effectSize) {
		return stats.PowerAnalysisResult{}, core.NewValidationError("effect_size", fmt.Sprintf("must be positive, got %v", effectSize))
	}
	if err := validAlpha(alpha); err != nil {
		return stats.PowerAnalysisResult{}, err
	}
	if err := validPower(power); err != nil {
		return stats.PowerAnalysisResult{}, err
	}
	if minimum <= 0 {
		minimum = DefaultMinimumSampleSize
	}

	z := zSum(alpha, power)
	raw := int(math.Ceil(2 * z * z / (effectSize * effectSize)))

	n := raw
	if n < minimum {
		n = minimum
	}
	return stats.PowerAnalysisResult{
		Alpha:             alpha,
		Power:             power,
		EffectSize:        effectSize,
		SampleSize:        n,
		SolvedFor:         SolveSampleSize,
		MinimumSampleSize: minimum,
		RawSampleSize:     raw,
	}, nil
}

// CalculatePower returns the power achieved with n per group: 1 − Φ(z_{α/2} − d·√(n/2))
func CalculatePower(n int, effectSize, alpha float64) (stats.PowerAnalysisResult, error) {
	if n < 2 {
		return stats.PowerAnalysisResult{}, core.NewValidationError("sample_size", fmt.Sprintf("must be at least 2, got %d", n))
	}
	if effectSize <= 0 || math.IsNaN(effectSize) {
		return stats.PowerAnalysisResult{}, core.NewValidationError("effect_size", fmt.Sprintf("must be positive, got %v", effectSize))
	}
	if err := validAlpha(alpha); err != nil {
		return stats.PowerAnalysisResult{}, err
	}

	zBeta := istats.ZScore(alpha/2) - effectSize*math.Sqrt(float64(n)/2)
	return stats.PowerAnalysisResult{
		Alpha:      alpha,
		Power:      1 - istats.NormalCDF(zBeta),
		EffectSize: effectSize,
		SampleSize: n,
		SolvedFor:  SolvePower,
	}, nil
}

// MinimumDetectableEffect returns (z_{α/2} + z_{1−power})·√(2/n)
func MinimumDetectableEffect(n int, alpha, power float64) (stats.PowerAnalysisResult, error) {
	if n < 2 {
		return stats.PowerAnalysisResult{}, core.NewValidationError("sample_size", fmt.Sprintf("must be at least 2, got %d", n))
	}
	if err := validAlpha(alpha); err != nil {
		return stats.PowerAnalysisResult{}, err
	}
	if err := validPower(power); err != nil {
		return stats.PowerAnalysisResult{}, err
	}

	return stats.PowerAnalysisResult{
		Alpha:      alpha,
		Power:      power,
		EffectSize: zSum(alpha, power) * math.Sqrt(2/float64(n)),
		SampleSize: n,
		SolvedFor:  SolveEffect,
	}, nil
}

// Analyze solves for the one quantity left at zero. Alpha defaults to 0.05.
func Analyze(req Request) (stats.PowerAnalysisResult, error) {
	if req.Alpha == 0 {
		req.Alpha = 0.05
	}

	missing := 0
	if req.SampleSize == 0 {
		missing++
	}
	if req.EffectSize == 0 {
		missing++
	}
	if req.Power == 0 {
		missing++
	}
	if missing != 1 {
		return stats.PowerAnalysisResult{}, core.NewValidationError("request",
			"exactly two of sample_size, effect_size and power must be supplied")
	}

	switch {
	case req.SampleSize == 0:
		return CalculateSampleSize(req.EffectSize, req.Alpha, req.Power, req.Minimum)
	case req.Power == 0:
		return CalculatePower(req.SampleSize, req.EffectSize, req.Alpha)
	default:
		return MinimumDetectableEffect(req.SampleSize, req.Alpha, req.Power)
	}
}
