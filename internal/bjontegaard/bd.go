// Package bjontegaard computes Bjontegaard-delta metrics between two
// rate-distortion curves.
package bjontegaard

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// fitDegree is the degree of the polynomial fitted to each curve.
	fitDegree = 3

	// maxLogDelta caps the average log-rate difference before it is
	// exponentiated. Badly formed data can push the fit far enough to
	// overflow math.Exp.
	maxLogDelta = 200.0
)

// BDRate returns the average bitrate difference of target relative to
// baseline at equal quality, in percent. Negative values mean the target
// needs less bitrate.
func BDRate(baseline, target Curve) (float64, error) {
	if err := validatePair(baseline, target); err != nil {
		return 0, err
	}

	avg, err := averageGap(
		baseline.qualities(), baseline.logRates(),
		target.qualities(), target.logRates(),
	)
	if err != nil {
		return 0, err
	}
	return percentFromLogDelta(avg), nil
}

// BDSNR returns the average quality difference of target relative to
// baseline at equal bitrate, in units of the quality metric.
func BDSNR(baseline, target Curve) (float64, error) {
	if err := validatePair(baseline, target); err != nil {
		return 0, err
	}

	return averageGap(
		baseline.logRates(), baseline.qualities(),
		target.logRates(), target.qualities(),
	)
}

func validatePair(baseline, target Curve) error {
	if err := baseline.Validate(); err != nil {
		return err
	}
	return target.Validate()
}

// averageGap fits y = f(x) for both curves and returns the mean vertical
// distance (second minus first) over the overlap of their x domains.
// An empty or single-point overlap yields 0.
func averageGap(x1, y1, x2, y2 []float64) (float64, error) {
	p1, err := polyfit(x1, y1, fitDegree)
	if err != nil {
		return 0, err
	}
	p2, err := polyfit(x2, y2, fitDegree)
	if err != nil {
		return 0, err
	}

	lo := math.Max(floats.Min(x1), floats.Min(x2))
	hi := math.Min(floats.Max(x1), floats.Max(x2))
	if hi <= lo {
		return 0, nil
	}

	return (p2.integrate(lo, hi) - p1.integrate(lo, hi)) / (hi - lo), nil
}

// percentFromLogDelta converts an average natural-log rate difference into
// a percentage. Only the upper side is clamped.
func percentFromLogDelta(d float64) float64 {
	if d > maxLogDelta {
		d = maxLogDelta
	}
	return (math.Exp(d) - 1) * 100
}
