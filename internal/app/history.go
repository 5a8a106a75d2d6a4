package app

import (
	"math"
	"time"
)

// healthHistorySize bounds the per-position sample buffer; at the fastest
// polling cadence this covers well over the deterioration window.
const healthHistorySize = 60

type healthSample struct {
	at time.Time
	hf float64
}

// HealthHistory is a bounded ring of health factor samples used by the
// deterioration watchdog. Not safe for concurrent use; the Alerter guards
// it with its own lock.
type HealthHistory struct {
	samples []healthSample
}

func NewHealthHistory() *HealthHistory {
	return &HealthHistory{}
}

func (h *HealthHistory) Add(at time.Time, hf float64) {
	h.samples = append(h.samples, healthSample{at: at, hf: hf})
	if len(h.samples) > healthHistorySize {
		h.samples = h.samples[len(h.samples)-healthHistorySize:]
	}
}

// Len returns the number of retained samples.
func (h *HealthHistory) Len() int {
	return len(h.samples)
}

// TrailingDropPct computes the percentage drop from the oldest in-window
// sample to the newest. ok is false with fewer than two in-window finite
// samples, or when the reference sample is infinite (nothing meaningful to
// compare against).
func (h *HealthHistory) TrailingDropPct(now time.Time, window time.Duration) (float64, bool) {
	cutoff := now.Add(-window)

	var oldest, newest *healthSample
	for i := range h.samples {
		s := &h.samples[i]
		if s.at.Before(cutoff) {
			continue
		}
		if oldest == nil {
			oldest = s
		}
		newest = s
	}
	if oldest == nil || newest == nil || oldest == newest {
		return 0, false
	}
	if math.IsInf(oldest.hf, 1) || math.IsInf(newest.hf, 1) || oldest.hf <= 0 {
		return 0, false
	}
	return (oldest.hf - newest.hf) / oldest.hf * 100, true
}
