package core

import "math"

// StressScenarios is the fixed set of collateral price shocks (percent)
// applied by RunStressTest, in order.
var StressScenarios = []float64{-5, -10, -15, -20, -25, -30, -40, -50}

// PriceSimulation is the outcome of shifting collateral prices by a
// percentage.
type PriceSimulation struct {
	PriceChangePercent  float64
	NewHealthFactor     float64
	WouldLiquidate      bool
	NewCollateralUSD    float64
	CollateralAtRiskUSD float64
}

// LiquidationPrediction estimates how far collateral prices must fall
// before a position becomes liquidatable. HasEstimate is false for
// debt-free positions, which cannot be liquidated at any price.
type LiquidationPrediction struct {
	HasEstimate      bool
	PriceDropPercent float64
	RiskLevel        string
	EstimatedTime    string
}

// SimulatePriceImpact recomputes a position's health factor after scaling
// all collateral value by (1 + pct/100).
func SimulatePriceImpact(p *Position, pct float64) PriceSimulation {
	newCollateral := p.TotalCollateralUSD * (1 + pct/100)

	newHF := InfiniteHealthFactor
	if p.TotalDebtUSD > 0 {
		newHF = (newCollateral * p.LiquidationThreshold) / p.TotalDebtUSD
	}

	sim := PriceSimulation{
		PriceChangePercent: pct,
		NewHealthFactor:    newHF,
		WouldLiquidate:     p.TotalDebtUSD > 0 && newHF <= 1.0,
		NewCollateralUSD:   newCollateral,
	}
	if sim.WouldLiquidate {
		sim.CollateralAtRiskUSD = newCollateral
	}
	return sim
}

// PredictLiquidation solves for the collateral price drop that brings the
// health factor to exactly 1.0 and maps the magnitude to a risk tier.
func PredictLiquidation(p *Position) LiquidationPrediction {
	if p.TotalDebtUSD == 0 {
		return LiquidationPrediction{RiskLevel: "None"}
	}

	currentHF := (p.TotalCollateralUSD * p.LiquidationThreshold) / p.TotalDebtUSD
	dropPct := math.Max(0, (1-1/currentHF)*100)

	risk, when := riskTier(dropPct)
	return LiquidationPrediction{
		HasEstimate:      true,
		PriceDropPercent: dropPct,
		RiskLevel:        risk,
		EstimatedTime:    when,
	}
}

func riskTier(dropPct float64) (level, estimatedTime string) {
	switch {
	case dropPct <= 5:
		return "Extreme", "Imminent (hours)"
	case dropPct <= 10:
		return "Very High", "Short-term (days)"
	case dropPct <= 20:
		return "High", "Medium-term (weeks)"
	case dropPct <= 30:
		return "Moderate", "Long-term (months)"
	default:
		return "Low", "Very unlikely"
	}
}

// RunStressTest applies the fixed scenario set to a position.
func RunStressTest(p *Position) []PriceSimulation {
	results := make([]PriceSimulation, 0, len(StressScenarios))
	for _, pct := range StressScenarios {
		results = append(results, SimulatePriceImpact(p, pct))
	}
	return results
}
