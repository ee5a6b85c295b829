package compare

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Magnitude is the conventional label for an absolute Cohen's d.
type Magnitude string

const (
	MagnitudeNone       Magnitude = ""
	MagnitudeNegligible Magnitude = "negligible"
	MagnitudeSmall      Magnitude = "small"
	MagnitudeMedium     Magnitude = "medium"
	MagnitudeLarge      Magnitude = "large"
)

// MagnitudeOf labels an effect size by its absolute value.
func MagnitudeOf(d float64) Magnitude {
	switch a := math.Abs(d); {
	case a < 0.2:
		return MagnitudeNegligible
	case a < 0.5:
		return MagnitudeSmall
	case a < 0.8:
		return MagnitudeMedium
	}
	return MagnitudeLarge
}

// PooledSD is the pooled standard deviation with sample variances weighted
// by n-1. Both samples need at least two observations.
func PooledSD(pre, post []float64) float64 {
	n1, n2 := float64(len(pre)), float64(len(post))
	if n1 < 2 || n2 < 2 {
		return math.NaN()
	}
	v1 := stat.Variance(pre, nil)
	v2 := stat.Variance(post, nil)
	return math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))
}

// CohensD is (mean(post) - mean(pre)) / PooledSD. It reports false when
// either sample has zero variance.
func CohensD(pre, post []float64) (float64, bool) {
	if len(pre) < 2 || len(post) < 2 {
		return 0, false
	}
	if stat.Variance(pre, nil) < minVariance || stat.Variance(post, nil) < minVariance {
		return 0, false
	}
	sd := PooledSD(pre, post)
	if math.IsNaN(sd) || sd == 0 {
		return 0, false
	}
	return (stat.Mean(post, nil) - stat.Mean(pre, nil)) / sd, true
}
