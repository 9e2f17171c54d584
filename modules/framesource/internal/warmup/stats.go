// Package warmup measures the real frame rate of sources that do not declare
// one (cameras, live streams) from frame arrival times.
package warmup

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a
	// fraction of mean FPS. Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction
	// of the expected inter-frame interval. Example: 30 FPS (33ms) → stable if
	// jitter < 6.6ms
	jitterStabilityThreshold = 0.20
)

// Stats summarizes frame arrival regularity over a measurement window.
type Stats struct {
	FramesReceived int           // Number of frames observed
	Duration       time.Duration // Length of the measurement window
	FPSMean        float64       // Frames per second over the whole window
	FPSStdDev      float64       // Standard deviation of instantaneous FPS
	FPSMin         float64       // Minimum instantaneous FPS
	FPSMax         float64       // Maximum instantaneous FPS
	IsStable       bool          // FPS stddev < 15% of mean AND mean jitter < 20% of interval
	JitterMean     float64       // Mean deviation from the expected interval (seconds)
	JitterStdDev   float64       // Standard deviation of jitter (seconds)
	JitterMax      float64       // Largest deviation observed (seconds)
}

// CalculateFPSStats computes Stats from frame arrival times.
//
// Steps:
//  1. Mean FPS = frames / window
//  2. Instantaneous FPS per positive inter-frame interval, with min/max/stddev
//  3. Jitter = |interval - 1/meanFPS| per interval, with mean/stddev/max
//  4. Stable when both relative spreads are under their thresholds
//
// An empty window or a window without positive intervals is never stable.
func CalculateFPSStats(frameTimes []time.Time, window time.Duration) *Stats {
	st := &Stats{FramesReceived: len(frameTimes), Duration: window}
	if len(frameTimes) == 0 || window <= 0 {
		return st
	}
	st.FPSMean = float64(len(frameTimes)) / window.Seconds()

	intervals := make([]float64, 0, len(frameTimes)-1)
	for i := 1; i < len(frameTimes); i++ {
		intervals = append(intervals, frameTimes[i].Sub(frameTimes[i-1]).Seconds())
	}

	instant := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		if iv > 0 {
			instant = append(instant, 1/iv)
		}
	}
	if len(instant) == 0 {
		return st
	}

	st.FPSMin, st.FPSMax = minMax(instant)
	st.FPSStdDev = stdDevAround(instant, st.FPSMean)

	expected := 1 / st.FPSMean
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expected)
	}
	st.JitterMean = mean(jitters)
	st.JitterStdDev = stdDevAround(jitters, st.JitterMean)
	_, st.JitterMax = minMax(jitters)

	st.IsStable = st.FPSStdDev < st.FPSMean*fpsStabilityThreshold &&
		st.JitterMean < expected*jitterStabilityThreshold
	return st
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDevAround(xs []float64, center float64) float64 {
	var sq float64
	for _, x := range xs {
		d := x - center
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
