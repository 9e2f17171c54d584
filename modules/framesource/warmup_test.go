package framesource

import (
	"math"
	"math/rand"
	"testing"
	"testing/quick"
	"time"
)

// TestWarmup_Property1_StabilityThresholds tests the stability criteria
//
// Property: FPS stddev < 15% of mean AND jitter < 20% of expected interval → IsStable = true
func TestWarmup_Property1_StabilityThresholds(t *testing.T) {
	t.Run("steady camera", func(t *testing.T) {
		frameTimes := arrivalTimes(30, 25.0, 0.05)
		stats := CalculateFPSStats(frameTimes, 30*40*time.Millisecond)

		if !stats.IsStable {
			t.Errorf("Expected stable source, got IsStable=false (FPS stddev: %.2f%%, jitter: %.2f%%)",
				(stats.FPSStdDev/stats.FPSMean)*100,
				(stats.JitterMean/(1.0/stats.FPSMean))*100,
			)
		}
	})

	t.Run("erratic stream", func(t *testing.T) {
		frameTimes := arrivalTimes(30, 25.0, 0.6)
		stats := CalculateFPSStats(frameTimes, 30*40*time.Millisecond)

		if stats.IsStable {
			t.Errorf("Expected unstable source (high jitter), got IsStable=true (jitter: %.2f%%)",
				(stats.JitterMean/(1.0/stats.FPSMean))*100,
			)
		}
	})
}

// TestWarmup_Property2_EdgeCases tests degenerate windows
//
// Property: Edge cases should not panic and are never stable
func TestWarmup_Property2_EdgeCases(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		frameTimes []time.Time
		window     time.Duration
	}{
		{"zero frames", []time.Time{}, time.Second},
		{"one frame", []time.Time{base}, time.Second},
		{"two frames, window too short", []time.Time{base, base.Add(time.Second)}, time.Second},
		{"zero window", []time.Time{base, base.Add(time.Second)}, 0},
		{"identical timestamps", []time.Time{base, base, base}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := CalculateFPSStats(tt.frameTimes, tt.window)
			if stats == nil {
				t.Fatal("CalculateFPSStats returned nil")
			}
			if stats.FPSStdDev < 0 || stats.JitterMean < 0 || stats.JitterMax < 0 {
				t.Errorf("negative spread: %+v", stats)
			}
			if stats.IsStable {
				t.Errorf("Expected IsStable=false, got true")
			}
		})
	}
}

// TestWarmup_Property3_Bounds tests statistic consistency
//
// Property: FPSMin <= FPSMax, jitter metrics >= 0, JitterMax >= JitterMean
func TestWarmup_Property3_Bounds(t *testing.T) {
	f := func(fps float64, numFrames uint8) bool {
		if fps < 0.1 || fps > 60.0 {
			return true
		}
		if numFrames < 2 || numFrames > 100 {
			return true
		}

		frameTimes := arrivalTimes(int(numFrames), fps, 0.1)
		window := time.Duration(float64(numFrames)/fps*1000) * time.Millisecond
		stats := CalculateFPSStats(frameTimes, window)

		if stats.FPSMin > stats.FPSMax {
			t.Logf("FAIL: FPSMin (%.2f) > FPSMax (%.2f)", stats.FPSMin, stats.FPSMax)
			return false
		}
		if stats.JitterMean < 0 || stats.JitterStdDev < 0 {
			t.Logf("FAIL: negative jitter with fps=%.2f, frames=%d", fps, numFrames)
			return false
		}
		if stats.JitterMax < stats.JitterMean {
			t.Logf("FAIL: JitterMax (%.6f) < JitterMean (%.6f)", stats.JitterMax, stats.JitterMean)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// TestWarmup_Property4_MeanTracksRate tests that the measured mean follows
// the generated rate.
func TestWarmup_Property4_MeanTracksRate(t *testing.T) {
	f := func(fps float64, numFrames uint8) bool {
		if fps < 0.1 || fps > 60.0 {
			return true
		}
		if numFrames < 10 || numFrames > 100 {
			return true
		}

		frameTimes := arrivalTimes(int(numFrames), fps, 0.05)
		window := time.Duration(float64(numFrames)/fps*1000) * time.Millisecond
		stats := CalculateFPSStats(frameTimes, window)

		if math.Abs(stats.FPSMean-fps) > fps*0.10 {
			t.Logf("FAIL: FPSMean (%.2f) deviates from expected (%.2f) by more than 10%%", stats.FPSMean, fps)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

func TestRateEstimator(t *testing.T) {
	t.Run("settles on a steady source", func(t *testing.T) {
		est := NewRateEstimator(20)
		settled := false
		for _, at := range arrivalTimes(20, 25.0, 0.02) {
			if est.Observe(at) {
				settled = true
			}
		}
		if !settled {
			t.Fatal("estimator did not settle")
		}
		rate, ok := est.Rate()
		if !ok || math.Abs(rate-25.0) > 1.0 {
			t.Errorf("Rate() = %.2f, %v; want ~25", rate, ok)
		}
	})

	t.Run("no rate before a full window", func(t *testing.T) {
		est := NewRateEstimator(20)
		for _, at := range arrivalTimes(10, 25.0, 0) {
			est.Observe(at)
		}
		if _, ok := est.Rate(); ok {
			t.Error("Rate() reported settled after half a window")
		}
	})

	t.Run("reset forgets", func(t *testing.T) {
		est := NewRateEstimator(5)
		for _, at := range arrivalTimes(5, 10.0, 0) {
			est.Observe(at)
		}
		if _, ok := est.Rate(); !ok {
			t.Fatal("expected settled rate")
		}
		est.Reset()
		if _, ok := est.Rate(); ok {
			t.Error("Rate() still settled after Reset")
		}
	})
}

// arrivalTimes generates frame timestamps with controlled jitter.
//
// jitterFraction: jitter as fraction of inter-frame interval (0.0 = perfect, 0.2 = 20% jitter)
func arrivalTimes(numFrames int, targetFPS float64, jitterFraction float64) []time.Time {
	if numFrames < 1 {
		return []time.Time{}
	}

	expectedInterval := 1.0 / targetFPS
	frameTimes := make([]time.Time, numFrames)
	frameTimes[0] = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rng := rand.New(rand.NewSource(42))
	for i := 1; i < numFrames; i++ {
		jitterSeconds := (rng.Float64()*2 - 1) * jitterFraction * expectedInterval
		actualInterval := expectedInterval + jitterSeconds
		frameTimes[i] = frameTimes[i-1].Add(time.Duration(actualInterval * float64(time.Second)))
	}
	return frameTimes
}

func BenchmarkCalculateFPSStats(b *testing.B) {
	frameTimes := arrivalTimes(100, 30.0, 0.1)
	window := 100 * time.Second / 30

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CalculateFPSStats(frameTimes, window)
	}
}
