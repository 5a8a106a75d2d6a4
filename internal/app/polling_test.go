package app

import (
	"math"
	"testing"
	"time"
)

func TestInterval(t *testing.T) {
	tests := []struct {
		name string
		hf   float64
		want time.Duration
	}{
		{"no debt", math.Inf(1), 600 * time.Second},
		{"liquidatable", 0.9, 30 * time.Second},
		{"critical band", 1.29, 30 * time.Second},
		{"elevated lower edge", 1.3, 120 * time.Second},
		{"elevated", 1.99, 120 * time.Second},
		{"normal lower edge", 2.0, 300 * time.Second},
		{"very healthy", 8.5, 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interval(tt.hf); got != tt.want {
				t.Errorf("Interval(%v) = %v, want %v", tt.hf, got, tt.want)
			}
		})
	}
}

func TestShouldCheckUnknownPair(t *testing.T) {
	pm := NewPollingManager(nil)
	if !pm.ShouldCheck("0xabc", "Aave V3 (Ethereum)") {
		t.Error("never-checked pair should be due immediately")
	}
}

func TestShouldCheckRespectsCadence(t *testing.T) {
	pm := NewPollingManager(nil)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pm.now = func() time.Time { return base }

	pm.RecordCheck("0xABC", "Aave V3 (Ethereum)", 0.5)

	// Key lookup is case-insensitive on the wallet.
	if pm.ShouldCheck("0xabc", "Aave V3 (Ethereum)") {
		t.Error("freshly recorded pair should not be due")
	}

	pm.now = func() time.Time { return base.Add(29 * time.Second) }
	if pm.ShouldCheck("0xabc", "Aave V3 (Ethereum)") {
		t.Error("critical pair should not be due before 30s")
	}

	pm.now = func() time.Time { return base.Add(30 * time.Second) }
	if !pm.ShouldCheck("0xabc", "Aave V3 (Ethereum)") {
		t.Error("critical pair should be due at 30s")
	}
}

func TestShouldCheckNoDebtCadence(t *testing.T) {
	pm := NewPollingManager(nil)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pm.now = func() time.Time { return base }

	pm.RecordCheck("0xabc", "Compound V3 (Ethereum)", math.Inf(1))

	pm.now = func() time.Time { return base.Add(599 * time.Second) }
	if pm.ShouldCheck("0xabc", "Compound V3 (Ethereum)") {
		t.Error("debt-free pair should not be due before 600s")
	}

	pm.now = func() time.Time { return base.Add(600 * time.Second) }
	if !pm.ShouldCheck("0xabc", "Compound V3 (Ethereum)") {
		t.Error("debt-free pair should be due at 600s")
	}
}

func TestLastHealthFactor(t *testing.T) {
	pm := NewPollingManager(nil)

	if _, ok := pm.LastHealthFactor("0xabc", "Aave V3 (Ethereum)"); ok {
		t.Error("unknown pair should report no health factor")
	}

	pm.RecordCheck("0xabc", "Aave V3 (Ethereum)", 1.42)
	hf, ok := pm.LastHealthFactor("0xABC", "Aave V3 (Ethereum)")
	if !ok || hf != 1.42 {
		t.Errorf("LastHealthFactor = %v, %v, want 1.42, true", hf, ok)
	}
}

func TestForgetDropsAllProtocols(t *testing.T) {
	pm := NewPollingManager(nil)
	pm.RecordCheck("0xabc", "Aave V3 (Ethereum)", 1.5)
	pm.RecordCheck("0xabc", "Compound V3 (Ethereum)", 2.5)
	pm.RecordCheck("0xdef", "Aave V3 (Ethereum)", 1.1)

	pm.Forget("0xABC")

	if _, ok := pm.LastHealthFactor("0xabc", "Aave V3 (Ethereum)"); ok {
		t.Error("forgotten wallet should have no state")
	}
	if _, ok := pm.LastHealthFactor("0xabc", "Compound V3 (Ethereum)"); ok {
		t.Error("forget should cover all protocols")
	}
	if _, ok := pm.LastHealthFactor("0xdef", "Aave V3 (Ethereum)"); !ok {
		t.Error("other wallets must survive Forget")
	}
}

func TestPollingStats(t *testing.T) {
	pm := NewPollingManager(nil)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pm.now = func() time.Time { return base }

	pm.RecordCheck("0xabc", "Aave V3 (Ethereum)", 0.9)  // due after 30s
	pm.RecordCheck("0xdef", "Aave V3 (Ethereum)", 3.0)  // due after 300s

	pm.now = func() time.Time { return base.Add(60 * time.Second) }
	stats := pm.Stats()
	if stats["tracked_pairs"] != 2 {
		t.Errorf("tracked_pairs = %d, want 2", stats["tracked_pairs"])
	}
	if stats["due_pairs"] != 1 {
		t.Errorf("due_pairs = %d, want 1", stats["due_pairs"])
	}
}
