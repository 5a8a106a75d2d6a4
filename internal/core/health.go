package core

import (
	"fmt"
	"math"
)

// Default assessment thresholds, overridable per user.
const (
	DefaultWarningThreshold  = 1.5
	DefaultCriticalThreshold = 1.1
)

// Recommendation targets: liquidatable and critical positions aim for a 1.5
// health factor, warning positions for a comfortable 2.0.
const (
	recoveryTargetHF = 1.5
	comfortTargetHF  = 2.0
)

// Recommendation is one suggested action to improve a position's health.
type Recommendation struct {
	Action    string // "repay" or "deposit"
	AmountUSD float64
	TargetHF  float64
}

// HealthAssessment is the classified view of a single position.
type HealthAssessment struct {
	Status          HealthStatus
	HealthFactor    float64
	NormalizedScore float64
	Message         string
	Recommendations []Recommendation
}

// NormalizedScore maps a health factor onto a 0-100 scale. HF 1.0-2.0 maps
// to 0-80 and HF 2.0-10.0 to 80-100; anything above 10 saturates.
func NormalizedScore(hf float64) float64 {
	if math.IsInf(hf, 1) || hf > 10 {
		return 100.0
	}
	if hf <= 1.0 {
		return 0.0
	}
	if hf <= 2.0 {
		return (hf - 1.0) * 80.0
	}
	return 80.0 + ((hf-2.0)/8.0)*20.0
}

// RepaymentForTargetHF returns the debt repayment (USD) that lifts the
// position to the target health factor. Zero when there is no debt or the
// position already meets the target.
func RepaymentForTargetHF(p *Position, targetHF float64) float64 {
	if p.TotalDebtUSD == 0 || p.HealthFactor >= targetHF {
		return 0
	}
	repay := p.TotalDebtUSD - (p.TotalCollateralUSD*p.LiquidationThreshold)/targetHF
	return math.Max(0, repay)
}

// DepositForTargetHF returns the collateral deposit (USD) that lifts the
// position to the target health factor. Zero when there is no debt or the
// position already meets the target.
func DepositForTargetHF(p *Position, targetHF float64) float64 {
	if p.TotalDebtUSD == 0 || p.HealthFactor >= targetHF {
		return 0
	}
	deposit := (targetHF*p.TotalDebtUSD)/p.LiquidationThreshold - p.TotalCollateralUSD
	return math.Max(0, deposit)
}

// SafeWithdrawal returns how much collateral (USD) can be withdrawn while
// keeping the health factor at or above the target. With no debt the whole
// collateral balance is withdrawable.
func SafeWithdrawal(p *Position, targetHF float64) float64 {
	if p.TotalDebtUSD == 0 {
		return p.TotalCollateralUSD
	}
	required := (targetHF * p.TotalDebtUSD) / p.LiquidationThreshold
	return math.Max(0, p.TotalCollateralUSD-required)
}

// MaxBorrow returns how much additional debt (USD) can be taken on while
// keeping the health factor at or above the target.
func MaxBorrow(p *Position, targetHF float64) float64 {
	maxDebt := (p.TotalCollateralUSD * p.LiquidationThreshold) / targetHF
	return math.Max(0, maxDebt-p.TotalDebtUSD)
}

// AssessHealth classifies a position against the given thresholds and
// attaches ranked recovery recommendations. The waterfall is evaluated
// top-to-bottom, so inverted thresholds (critical >= warning) are accepted
// and simply resolve to whichever branch matches first.
//
// Returns an error when the position carries debt but reports a
// non-positive liquidation threshold, since the recommendation math would
// otherwise divide by zero.
func AssessHealth(p *Position, warningThreshold, criticalThreshold float64) (HealthAssessment, error) {
	hf := p.HealthFactor
	assessment := HealthAssessment{
		HealthFactor:    hf,
		NormalizedScore: NormalizedScore(hf),
	}

	if p.TotalDebtUSD > 0 && p.LiquidationThreshold <= 0 {
		return assessment, fmt.Errorf("position %s/%s: liquidation threshold must be positive, got %v",
			p.Protocol, p.Wallet, p.LiquidationThreshold)
	}

	switch {
	case hf <= 1.0:
		assessment.Status = StatusLiquidatable
		assessment.Message = "Position is liquidatable! Immediate action required."
		assessment.Recommendations = recoveryRecommendations(p, recoveryTargetHF)
	case hf <= criticalThreshold:
		assessment.Status = StatusCritical
		assessment.Message = fmt.Sprintf("Critical: Health factor at %.2f. High liquidation risk!", hf)
		assessment.Recommendations = recoveryRecommendations(p, recoveryTargetHF)
	case hf <= warningThreshold:
		assessment.Status = StatusWarning
		assessment.Message = fmt.Sprintf("Warning: Health factor at %.2f. Consider adding collateral.", hf)
		if deposit := DepositForTargetHF(p, comfortTargetHF); deposit > 0 {
			assessment.Recommendations = []Recommendation{
				{Action: "deposit", AmountUSD: deposit, TargetHF: comfortTargetHF},
			}
		}
	default:
		assessment.Status = StatusHealthy
		assessment.Message = fmt.Sprintf("Healthy: Health factor at %.2f.", hf)
	}

	return assessment, nil
}

// recoveryRecommendations ranks repayment ahead of deposits: repaying both
// reduces exposure and interest, while a deposit only adds buffer.
func recoveryRecommendations(p *Position, targetHF float64) []Recommendation {
	var recs []Recommendation
	if repay := RepaymentForTargetHF(p, targetHF); repay > 0 {
		recs = append(recs, Recommendation{Action: "repay", AmountUSD: repay, TargetHF: targetHF})
	}
	if deposit := DepositForTargetHF(p, targetHF); deposit > 0 {
		recs = append(recs, Recommendation{Action: "deposit", AmountUSD: deposit, TargetHF: targetHF})
	}
	return recs
}
