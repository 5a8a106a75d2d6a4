package core

import "math"

// Portfolio-level alerts always classify against conservative fixed
// thresholds, regardless of per-user settings.
const (
	unifiedCriticalThreshold = 1.1
	unifiedWarningThreshold  = 1.5
)

// UnifiedHealthScore aggregates all of a wallet's positions across
// protocols into a single portfolio view. The worst position dominates the
// overall status: a single near-liquidation position is an emergency no
// matter how healthy the rest of the portfolio is.
type UnifiedHealthScore struct {
	TotalCollateralUSD float64
	TotalDebtUSD       float64
	// WeightedHealthFactor is the debt-weighted average over positions
	// with finite health factors and outstanding debt; infinite when no
	// such position exists.
	WeightedHealthFactor float64
	WorstPosition        *Position
	OverallStatus        HealthStatus
	OverallScore         float64
	// ProtocolBreakdown maps protocol name to its health factor.
	ProtocolBreakdown map[string]float64
}

// AggregateHealth combines positions into a UnifiedHealthScore. An empty
// input yields the canonical all-healthy result (score 100, no worst
// position), not an error.
func AggregateHealth(positions []*Position) UnifiedHealthScore {
	score := UnifiedHealthScore{
		WeightedHealthFactor: InfiniteHealthFactor,
		OverallStatus:        StatusHealthy,
		OverallScore:         100.0,
		ProtocolBreakdown:    make(map[string]float64),
	}
	if len(positions) == 0 {
		return score
	}

	minHF := InfiniteHealthFactor
	var weightedSum, debtSum float64
	for _, p := range positions {
		score.TotalCollateralUSD += p.TotalCollateralUSD
		score.TotalDebtUSD += p.TotalDebtUSD
		score.ProtocolBreakdown[p.Protocol] = p.HealthFactor

		if p.HealthFactor <= minHF {
			minHF = p.HealthFactor
			score.WorstPosition = p
		}
		if !math.IsInf(p.HealthFactor, 1) && p.TotalDebtUSD > 0 {
			weightedSum += p.HealthFactor * p.TotalDebtUSD
			debtSum += p.TotalDebtUSD
		}
	}
	if debtSum > 0 {
		score.WeightedHealthFactor = weightedSum / debtSum
	}

	switch {
	case minHF <= 1.0:
		score.OverallStatus = StatusLiquidatable
	case minHF <= unifiedCriticalThreshold:
		score.OverallStatus = StatusCritical
	case minHF <= unifiedWarningThreshold:
		score.OverallStatus = StatusWarning
	default:
		score.OverallStatus = StatusHealthy
	}
	score.OverallScore = NormalizedScore(minHF)

	return score
}
