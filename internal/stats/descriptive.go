// Package stats holds the numeric primitives shared by every hypothesis test:
// moments, the standard normal CDF, z-score lookup and tail-probability strategies.
package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"
)

// Mean returns the arithmetic mean, 0 for empty input
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m, err := mstats.Mean(data)
	if err != nil {
		return 0
	}
	return m
}

// Variance returns the Bessel-corrected sample variance (divide by n-1).
// Variance of 0 or 1 samples is defined as 0.
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	v, err := mstats.SampleVariance(data)
	if err != nil {
		return 0
	}
	return v
}

// StdDev is the square root of Variance
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// Skewness is the third standardized moment, using the sample variance for scale.
// Returns 0 for fewer than 3 values or zero variance.
func Skewness(data []float64, mean, variance float64) float64 {
	if len(data) <= 2 || variance == 0 {
		return 0
	}
	sd := math.Sqrt(variance)
	sum := 0.0
	for _, x := range data {
		z := (x - mean) / sd
		sum += z * z * z
	}
	return sum / float64(len(data))
}

// Kurtosis is the fourth standardized moment (not excess: a normal sample is ~3).
// Returns 3 for fewer than 4 values or zero variance.
func Kurtosis(data []float64, mean, variance float64) float64 {
	if len(data) <= 3 || variance == 0 {
		return 3
	}
	sd := math.Sqrt(variance)
	sum := 0.0
	for _, x := range data {
		z := (x - mean) / sd
		sum += z * z * z * z
	}
	return sum / float64(len(data))
}

// Percentile returns the p-th percentile (0-100), 0 for empty input
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	v, err := mstats.Percentile(data, p)
	if err != nil {
		return 0
	}
	return v
}

// Median of data, 0 for empty input
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	v, err := mstats.Median(data)
	if err != nil {
		return 0
	}
	return v
}

// ConfidenceInterval returns mean ± z·SE at the given confidence level
// (0.95 gives the usual 1.96 multiplier). Empty input yields [0, 0].
func ConfidenceInterval(data []float64, confidence float64) (lower, upper float64) {
	if len(data) == 0 {
		return 0, 0
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	z := ZScore((1 - confidence) / 2)
	mean := Mean(data)
	se := StdDev(data) / math.Sqrt(float64(len(data)))
	return mean - z*se, mean + z*se
}
