package warmup

import (
	"log/slog"
	"sync"
	"time"
)

// Estimator watches frame arrivals and settles on a native rate once a full
// window of frames arrives with stable timing. Windows that turn out
// unstable are discarded and measurement starts over.
type Estimator struct {
	mu      sync.Mutex
	window  int
	times   []time.Time
	rate    float64
	settled bool
	rounds  int
}

// NewEstimator returns an Estimator measuring over windows of n frames
// (minimum 3).
func NewEstimator(n int) *Estimator {
	if n < 3 {
		n = 3
	}
	return &Estimator{window: n, times: make([]time.Time, 0, n)}
}

// Observe records one frame arrival. It reports true on the call that
// settles the rate.
func (e *Estimator) Observe(at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settled {
		return false
	}
	e.times = append(e.times, at)
	if len(e.times) < e.window {
		return false
	}

	span := e.times[len(e.times)-1].Sub(e.times[0])
	// n frames span n-1 intervals; scale so FPSMean is per-interval accurate
	window := span + span/time.Duration(len(e.times)-1)
	st := CalculateFPSStats(e.times, window)
	e.rounds++

	if !st.IsStable {
		slog.Debug("warmup: window unstable, measuring again",
			"round", e.rounds,
			"fps_mean", st.FPSMean,
			"fps_stddev", st.FPSStdDev,
			"jitter_mean", st.JitterMean,
		)
		e.times = e.times[:0]
		return false
	}

	e.rate = st.FPSMean
	e.settled = true
	slog.Info("warmup: native rate measured",
		"fps", st.FPSMean,
		"frames", st.FramesReceived,
		"rounds", e.rounds,
		"jitter_mean", st.JitterMean,
	)
	return true
}

// Rate returns the measured rate once settled.
func (e *Estimator) Rate() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate, e.settled
}

// Reset forgets any measurement.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.times = e.times[:0]
	e.rate = 0
	e.settled = false
	e.rounds = 0
}
