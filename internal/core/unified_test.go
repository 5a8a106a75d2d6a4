package core

import (
	"math"
	"testing"
)

func TestAggregateHealthEmpty(t *testing.T) {
	got := AggregateHealth(nil)
	if got.OverallStatus != StatusHealthy {
		t.Errorf("status = %v, want HEALTHY", got.OverallStatus)
	}
	if got.OverallScore != 100 {
		t.Errorf("score = %v, want 100", got.OverallScore)
	}
	if got.WorstPosition != nil {
		t.Errorf("worst position = %+v, want nil", got.WorstPosition)
	}
	if !math.IsInf(got.WeightedHealthFactor, 1) {
		t.Errorf("weighted hf = %v, want +Inf", got.WeightedHealthFactor)
	}
}

func TestAggregateHealthWorstDominates(t *testing.T) {
	positions := []*Position{
		{Protocol: "Aave V3 (Ethereum)", TotalCollateralUSD: 20000, TotalDebtUSD: 5000, HealthFactor: 3.0},
		{Protocol: "Compound V3 (Ethereum)", TotalCollateralUSD: 8000, TotalDebtUSD: 5000, HealthFactor: 1.2},
	}
	got := AggregateHealth(positions)

	if got.OverallStatus != StatusWarning {
		t.Errorf("status = %v, want WARNING", got.OverallStatus)
	}
	if got.WorstPosition == nil || got.WorstPosition.HealthFactor != 1.2 {
		t.Errorf("worst position = %+v, want hf 1.2", got.WorstPosition)
	}
	if got.TotalCollateralUSD != 28000 || got.TotalDebtUSD != 10000 {
		t.Errorf("totals = %v/%v, want 28000/10000", got.TotalCollateralUSD, got.TotalDebtUSD)
	}
	// (3.0*5000 + 1.2*5000) / 10000 = 2.1
	if !almostEqual(got.WeightedHealthFactor, 2.1, 1e-9) {
		t.Errorf("weighted hf = %v, want 2.1", got.WeightedHealthFactor)
	}
	if got.ProtocolBreakdown["Compound V3 (Ethereum)"] != 1.2 {
		t.Errorf("breakdown = %v, missing compound entry", got.ProtocolBreakdown)
	}
}

func TestAggregateHealthFixedThresholds(t *testing.T) {
	// 1.05 is CRITICAL under the fixed 1.1 threshold even though a user
	// with a lower custom critical threshold would call it WARNING.
	got := AggregateHealth([]*Position{
		{Protocol: "Aave V3 (Ethereum)", TotalCollateralUSD: 1000, TotalDebtUSD: 800, HealthFactor: 1.05},
	})
	if got.OverallStatus != StatusCritical {
		t.Errorf("status = %v, want CRITICAL", got.OverallStatus)
	}
}

func TestAggregateHealthAllDebtFree(t *testing.T) {
	got := AggregateHealth([]*Position{
		{Protocol: "Aave V3 (Ethereum)", TotalCollateralUSD: 5000, HealthFactor: math.Inf(1)},
		{Protocol: "Compound V3 (Ethereum)", TotalCollateralUSD: 3000, HealthFactor: math.Inf(1)},
	})
	if !math.IsInf(got.WeightedHealthFactor, 1) {
		t.Errorf("weighted hf = %v, want +Inf when no position has debt", got.WeightedHealthFactor)
	}
	if got.OverallStatus != StatusHealthy || got.OverallScore != 100 {
		t.Errorf("got %v/%v, want HEALTHY/100", got.OverallStatus, got.OverallScore)
	}
	if got.WorstPosition == nil {
		t.Error("worst position should still be tracked for non-empty input")
	}
}
