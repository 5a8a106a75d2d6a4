// Package core holds the protocol-agnostic position model and the pure
// health/risk math that the monitoring engine and the bot front end share.
package core

import (
	"context"
	"math"
)

// InfiniteHealthFactor is the sentinel for positions with no debt: nothing
// to liquidate, so the health factor is unbounded.
var InfiniteHealthFactor = math.Inf(1)

// HealthStatus classifies a position by liquidation proximity. Values are
// ordered so that a higher status is strictly worse.
type HealthStatus int

const (
	StatusHealthy HealthStatus = iota
	StatusWarning
	StatusCritical
	StatusLiquidatable
)

func (s HealthStatus) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	case StatusLiquidatable:
		return "LIQUIDATABLE"
	default:
		return "UNKNOWN"
	}
}

// CollateralAsset is one supplied asset inside a position.
type CollateralAsset struct {
	Symbol               string
	Amount               float64
	ValueUSD             float64
	LiquidationThreshold float64
}

// DebtAsset is one borrowed asset inside a position.
type DebtAsset struct {
	Symbol   string
	Amount   float64
	ValueUSD float64
	// APY is the current borrow rate as a fraction, when the adapter
	// reports one.
	APY float64
}

// Position is a wallet's standing on one lending protocol, as reported by
// the protocol adapter. HealthFactor is InfiniteHealthFactor when the
// position carries no debt.
type Position struct {
	Protocol             string
	Chain                string
	Wallet               string
	TotalCollateralUSD   float64
	TotalDebtUSD         float64
	HealthFactor         float64
	LiquidationThreshold float64

	// Per-asset detail, populated only by detailed lookups.
	Collateral []CollateralAsset
	Debt       []DebtAsset
}

// HasDebt reports whether the position carries any borrowed value.
func (p *Position) HasDebt() bool {
	return p.TotalDebtUSD > 0
}

// IsLiquidatable reports whether the position can be liquidated right now.
func (p *Position) IsLiquidatable() bool {
	return p.HasDebt() && p.HealthFactor <= 1.0
}

// ProtocolAdapter is implemented per lending protocol. GetPosition returns
// found=false when the wallet has no position on the protocol; a non-nil
// error means the lookup itself failed and says nothing about whether a
// position exists.
type ProtocolAdapter interface {
	// Name identifies the protocol deployment, e.g. "Aave V3 (Ethereum)".
	Name() string
	// Chain names the chain the deployment lives on, e.g. "ethereum".
	Chain() string
	// GetPosition fetches the aggregate position for a wallet.
	GetPosition(ctx context.Context, wallet string) (*Position, bool, error)
	// GetDetailedPosition fetches the position including per-asset
	// breakdowns. Implementations fall back to the basic position when
	// the detail lookup fails.
	GetDetailedPosition(ctx context.Context, wallet string) (*Position, bool, error)
	// HasPosition reports whether the wallet has any standing on the
	// protocol.
	HasPosition(ctx context.Context, wallet string) (bool, error)
}
