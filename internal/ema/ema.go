// Package ema implements the exponential-moving-average arithmetic shared
// by the duration predictor and the availability calculator's rolling
// task-duration estimate. Every function here is pure: no I/O, no locks,
// no shared state.
package ema

import "time"

// Blend folds a new sample into an existing EMA. The first sample for a
// series should call Blend with hasPrior=false, which returns the sample
// unchanged regardless of alpha.
func Blend(current float64, hasPrior bool, sample float64, alpha float64) float64 {
	if !hasPrior {
		return sample
	}
	return alpha*sample + (1-alpha)*current
}

// BlendDuration is Blend specialized for time.Duration values.
func BlendDuration(current time.Duration, hasPrior bool, sample time.Duration, alpha float64) time.Duration {
	return time.Duration(Blend(float64(current), hasPrior, float64(sample), alpha))
}

// Confidence maps a sample count to a confidence score in [0,1], saturating
// at 1 once sampleCount reaches threshold.
func Confidence(sampleCount int64, threshold int64) float64 {
	if threshold <= 0 {
		return 1
	}
	c := float64(sampleCount) / float64(threshold)
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}
