package app

import (
	"math"
	"testing"
	"time"
)

func TestHealthHistoryTrailingDrop(t *testing.T) {
	h := NewHealthHistory()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := h.TrailingDropPct(base, time.Hour); ok {
		t.Error("empty history should report no drop")
	}

	h.Add(base, 2.0)
	if _, ok := h.TrailingDropPct(base, time.Hour); ok {
		t.Error("a single sample should report no drop")
	}

	h.Add(base.Add(30*time.Minute), 1.6)
	drop, ok := h.TrailingDropPct(base.Add(30*time.Minute), time.Hour)
	if !ok {
		t.Fatal("expected a drop with two in-window samples")
	}
	if drop < 19.9 || drop > 20.1 {
		t.Errorf("drop = %v, want 20", drop)
	}
}

func TestHealthHistoryWindowExcludesOldSamples(t *testing.T) {
	h := NewHealthHistory()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	h.Add(base, 4.0)
	h.Add(base.Add(90*time.Minute), 2.0)

	// The 4.0 sample is outside the one-hour window; only one sample
	// remains in-window, so no drop is reported.
	if _, ok := h.TrailingDropPct(base.Add(90*time.Minute), time.Hour); ok {
		t.Error("out-of-window reference should not produce a drop")
	}
}

func TestHealthHistoryInfiniteReference(t *testing.T) {
	h := NewHealthHistory()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	h.Add(base, math.Inf(1))
	h.Add(base.Add(time.Minute), 1.5)
	if _, ok := h.TrailingDropPct(base.Add(time.Minute), time.Hour); ok {
		t.Error("infinite reference sample has no meaningful drop")
	}
}

func TestHealthHistoryBounded(t *testing.T) {
	h := NewHealthHistory()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < healthHistorySize+25; i++ {
		h.Add(base.Add(time.Duration(i)*time.Second), 2.0)
	}
	if h.Len() != healthHistorySize {
		t.Errorf("Len = %d, want %d", h.Len(), healthHistorySize)
	}
}
