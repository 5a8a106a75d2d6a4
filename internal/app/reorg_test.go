package app

import (
	"math"
	"testing"
)

const (
	reorgWallet   = "0xAbCd000000000000000000000000000000000000"
	reorgProtocol = "Aave V3 (Ethereum)"
)

func TestRecordStateSingleObservationNeverConfirms(t *testing.T) {
	rt := NewReorgTracker(nil)

	novel, state := rt.RecordState(reorgWallet, reorgProtocol, 0.8, 1000, 1500, 100)
	if state != nil {
		t.Fatal("a single observation must not confirm, even when liquidatable")
	}
	if novel {
		t.Error("unconfirmed observation cannot be novel")
	}
}

func TestRecordStateCriticalConfirmsAtTwoBlocks(t *testing.T) {
	rt := NewReorgTracker(nil)

	rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 100)
	novel, state := rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 101)
	if state == nil {
		t.Fatal("matching critical observations two blocks apart should confirm")
	}
	if !novel {
		t.Error("first confirmation should be novel")
	}
	if !state.IsCritical || state.IsLiquidatable {
		t.Errorf("hf 1.1 should be critical, not liquidatable: %+v", state)
	}
	if state.FirstSeenBlock != 100 || state.ConfirmedAtBlock != 101 {
		t.Errorf("block bookkeeping wrong: %+v", state)
	}
}

func TestRecordStateNonCriticalNeedsThreeBlocks(t *testing.T) {
	rt := NewReorgTracker(nil)

	rt.RecordState(reorgWallet, reorgProtocol, 1.8, 10000, 5000, 100)
	if _, state := rt.RecordState(reorgWallet, reorgProtocol, 1.8, 10000, 5000, 101); state != nil {
		t.Fatal("non-critical state must not confirm at depth 2")
	}
	novel, state := rt.RecordState(reorgWallet, reorgProtocol, 1.8, 10000, 5000, 102)
	if state == nil {
		t.Fatal("non-critical state should confirm at depth 3")
	}
	if !novel {
		t.Error("first confirmation should be novel")
	}
	if state.IsCritical || state.IsLiquidatable {
		t.Errorf("hf 1.8 should be neither critical nor liquidatable: %+v", state)
	}
}

func TestRecordStateToleranceMismatchResetsDepth(t *testing.T) {
	rt := NewReorgTracker(nil)

	// 5% apart on health factor, well outside the 1% tolerance.
	rt.RecordState(reorgWallet, reorgProtocol, 1.10, 10000, 8000, 100)
	_, state := rt.RecordState(reorgWallet, reorgProtocol, 1.16, 10000, 8000, 101)
	if state != nil {
		t.Fatal("divergent observations must not confirm")
	}
}

func TestRecordStateWithinToleranceConfirms(t *testing.T) {
	rt := NewReorgTracker(nil)

	// 0.5% apart on health factor, within the 1% tolerance.
	rt.RecordState(reorgWallet, reorgProtocol, 1.100, 10000, 8000, 100)
	_, state := rt.RecordState(reorgWallet, reorgProtocol, 1.105, 10010, 8005, 101)
	if state == nil {
		t.Fatal("observations within tolerance should count as the same state")
	}
}

func TestRecordStateNovelOnClassificationChange(t *testing.T) {
	rt := NewReorgTracker(nil)

	rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 100)
	rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 101)

	// Same classification again: confirmed but no longer novel.
	novel, state := rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 102)
	if state == nil {
		t.Fatal("expected continued confirmation")
	}
	if novel {
		t.Error("unchanged classification should not be novel")
	}

	// Drops to liquidatable and holds for two blocks.
	rt.RecordState(reorgWallet, reorgProtocol, 0.95, 10000, 9500, 103)
	novel, state = rt.RecordState(reorgWallet, reorgProtocol, 0.95, 10000, 9500, 104)
	if state == nil {
		t.Fatal("liquidatable state should confirm at depth 2")
	}
	if !novel {
		t.Error("critical-to-liquidatable transition should be novel")
	}
	if !state.IsLiquidatable {
		t.Errorf("hf 0.95 should be liquidatable: %+v", state)
	}
}

func TestRecordStateInfiniteHealthFactors(t *testing.T) {
	rt := NewReorgTracker(nil)
	inf := math.Inf(1)

	rt.RecordState(reorgWallet, reorgProtocol, inf, 5000, 0, 100)
	rt.RecordState(reorgWallet, reorgProtocol, inf, 5000, 0, 101)
	_, state := rt.RecordState(reorgWallet, reorgProtocol, inf, 5000, 0, 102)
	if state == nil {
		t.Fatal("matching debt-free observations should confirm at depth 3")
	}
	if state.IsCritical || state.IsLiquidatable {
		t.Errorf("infinite health factor misclassified: %+v", state)
	}
}

func TestUpdateBlockNumberMonotonic(t *testing.T) {
	rt := NewReorgTracker(nil)

	rt.UpdateBlockNumber("ethereum", 100)
	rt.UpdateBlockNumber("ethereum", 99)
	if got := rt.BlockNumber("ethereum"); got != 100 {
		t.Errorf("BlockNumber = %d, want 100", got)
	}
	rt.UpdateBlockNumber("ethereum", 105)
	if got := rt.BlockNumber("ethereum"); got != 105 {
		t.Errorf("BlockNumber = %d, want 105", got)
	}
}

func TestReorgForget(t *testing.T) {
	rt := NewReorgTracker(nil)

	rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 100)
	rt.RecordState(reorgWallet, reorgProtocol, 1.1, 10000, 8000, 101)
	if _, ok := rt.ConfirmedFor(reorgWallet, reorgProtocol); !ok {
		t.Fatal("expected confirmed state before Forget")
	}

	rt.Forget(reorgWallet)
	if _, ok := rt.ConfirmedFor(reorgWallet, reorgProtocol); ok {
		t.Error("Forget should drop the confirmed state")
	}
	if stats := rt.Stats(); stats["tracked_pairs"] != 0 {
		t.Errorf("tracked_pairs = %d, want 0", stats["tracked_pairs"])
	}
}
