package framesource

import (
	"time"

	"github.com/e7canasta/tplay/modules/framesource/internal/warmup"
)

// WarmupStats summarizes frame arrival regularity over a measurement window.
type WarmupStats = warmup.Stats

// RateEstimator settles on a native frame rate from arrival times.
type RateEstimator = warmup.Estimator

// CalculateFPSStats calculates FPS statistics from frame arrival times.
//
// A stream is stable when the FPS standard deviation is under 15% of the mean
// and the mean jitter is under 20% of the expected interval.
func CalculateFPSStats(frameTimes []time.Time, window time.Duration) *WarmupStats {
	return warmup.CalculateFPSStats(frameTimes, window)
}

// NewRateEstimator measures over windows of n frames.
func NewRateEstimator(n int) *RateEstimator {
	return warmup.NewEstimator(n)
}
