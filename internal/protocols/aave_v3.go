// Package protocols implements the lending-protocol adapters. Each adapter
// is a thin eth_call wrapper that maps on-chain account data onto the core
// position model.
package protocols

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/ethrpc"
	"github.com/Alpha-M2/liquidation-alerter/internal/core"
)

// Aave V3 Pool addresses per chain.
var aaveV3Pools = map[string]string{
	"ethereum": "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
	"arbitrum": "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
	"base":     "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5",
	"optimism": "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
}

// getUserAccountData(address)
const getUserAccountDataSelector = "0xbf92857c"

// AaveV3 reads positions from the Aave V3 Pool contract.
type AaveV3 struct {
	logger *zap.Logger
	rpc    *ethrpc.Client
	chain  string
	pool   string
}

func NewAaveV3(logger *zap.Logger, rpc *ethrpc.Client, chain string) (*AaveV3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain = strings.ToLower(chain)
	pool, ok := aaveV3Pools[chain]
	if !ok {
		return nil, fmt.Errorf("aave v3: unsupported chain %q", chain)
	}
	return &AaveV3{logger: logger, rpc: rpc, chain: chain, pool: pool}, nil
}

func (a *AaveV3) Name() string {
	return fmt.Sprintf("Aave V3 (%s)", titleCase(a.chain))
}

func (a *AaveV3) Chain() string {
	return a.chain
}

// GetPosition calls getUserAccountData and converts the base-currency
// amounts (8 decimals) to USD. found is false when the wallet has neither
// collateral nor debt on the pool.
func (a *AaveV3) GetPosition(ctx context.Context, wallet string) (*core.Position, bool, error) {
	data := getUserAccountDataSelector + encodeAddress(wallet)
	result, err := a.rpc.CallContract(ctx, a.pool, data)
	if err != nil {
		return nil, false, fmt.Errorf("aave v3 %s getUserAccountData: %w", a.chain, err)
	}

	words, err := splitWords(result, 6)
	if err != nil {
		return nil, false, fmt.Errorf("aave v3 %s account data: %w", a.chain, err)
	}

	collateralUSD := wordToFloat(words[0], 1e8)
	debtUSD := wordToFloat(words[1], 1e8)
	// currentLiquidationThreshold is in basis points.
	threshold := wordToFloat(words[3], 1e4)
	hf := wordToHealthFactor(words[5])

	if collateralUSD == 0 && debtUSD == 0 {
		return nil, false, nil
	}

	return &core.Position{
		Protocol:             a.Name(),
		Chain:                a.chain,
		Wallet:               strings.ToLower(wallet),
		TotalCollateralUSD:   collateralUSD,
		TotalDebtUSD:         debtUSD,
		HealthFactor:         hf,
		LiquidationThreshold: threshold,
	}, true, nil
}

// GetDetailedPosition returns the aggregate position. The per-asset
// breakdown needs the UiPoolDataProvider tuple decoding; the aggregate
// account data already carries everything the monitor acts on.
// TODO: decode getUserReservesData for per-asset collateral and debt rows.
func (a *AaveV3) GetDetailedPosition(ctx context.Context, wallet string) (*core.Position, bool, error) {
	return a.GetPosition(ctx, wallet)
}

func (a *AaveV3) HasPosition(ctx context.Context, wallet string) (bool, error) {
	_, found, err := a.GetPosition(ctx, wallet)
	return found, err
}
