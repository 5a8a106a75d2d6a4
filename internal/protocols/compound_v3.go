package protocols

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/ethrpc"
	"github.com/Alpha-M2/liquidation-alerter/internal/core"
)

// Compound V3 Comet USDC market addresses per chain.
var compoundV3Comets = map[string]string{
	"ethereum": "0xc3d688B66703497DAA19211EEdff47f25384cdc3",
	"arbitrum": "0x9c4ec768c28520B50860ea7a15bd7213a9fF58bf",
	"base":     "0xb125E6687d4313864e53df431d5425969c15Eb2F",
	"optimism": "0x2e44e174f7D53F0212823acC11C01A11d58c5bCB",
}

// Comet selectors.
const (
	borrowBalanceOfSelector     = "0x374c49b4" // borrowBalanceOf(address)
	balanceOfSelector           = "0x70a08231" // balanceOf(address)
	numAssetsSelector           = "0xa46fe83b" // numAssets()
	getAssetInfoSelector        = "0xc8c7fe6b" // getAssetInfo(uint8)
	collateralBalanceOfSelector = "0x5c2549ee" // collateralBalanceOf(address,address)
	getPriceSelector            = "0x41976e09" // getPrice(address)
)

// The base token of the USDC markets has 6 decimals and Comet prices carry
// 8 decimals.
const (
	baseTokenScale  = 1e6
	cometPriceScale = 1e8
)

// CompoundV3 reads positions from a Comet market.
type CompoundV3 struct {
	logger *zap.Logger
	rpc    *ethrpc.Client
	chain  string
	comet  string
}

func NewCompoundV3(logger *zap.Logger, rpc *ethrpc.Client, chain string) (*CompoundV3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain = strings.ToLower(chain)
	comet, ok := compoundV3Comets[chain]
	if !ok {
		return nil, fmt.Errorf("compound v3: unsupported chain %q", chain)
	}
	return &CompoundV3{logger: logger, rpc: rpc, chain: chain, comet: comet}, nil
}

func (c *CompoundV3) Name() string {
	return fmt.Sprintf("Compound V3 (%s)", titleCase(c.chain))
}

func (c *CompoundV3) Chain() string {
	return c.chain
}

// GetPosition walks the market's collateral assets and prices each balance
// through the Comet's own feed registry. Comet has no aggregate
// getUserAccountData equivalent, so the health factor is derived as
// collateral * liquidateCollateralFactor / debt.
func (c *CompoundV3) GetPosition(ctx context.Context, wallet string) (*core.Position, bool, error) {
	borrowUSD, err := c.callUintScaled(ctx, borrowBalanceOfSelector+encodeAddress(wallet), baseTokenScale)
	if err != nil {
		return nil, false, fmt.Errorf("compound v3 %s borrowBalanceOf: %w", c.chain, err)
	}
	supplyUSD, err := c.callUintScaled(ctx, balanceOfSelector+encodeAddress(wallet), baseTokenScale)
	if err != nil {
		return nil, false, fmt.Errorf("compound v3 %s balanceOf: %w", c.chain, err)
	}

	numAssets, err := c.callUintScaled(ctx, numAssetsSelector, 1)
	if err != nil {
		return nil, false, fmt.Errorf("compound v3 %s numAssets: %w", c.chain, err)
	}

	var collateralUSD, liquidationFactor float64
	for i := 0; i < int(numAssets); i++ {
		assetInfo, err := c.rpc.CallContract(ctx, c.comet, getAssetInfoSelector+encodeUint8(uint8(i)))
		if err != nil {
			return nil, false, fmt.Errorf("compound v3 %s getAssetInfo(%d): %w", c.chain, i, err)
		}
		// (offset, asset, priceFeed, scale, borrowCF, liquidateCF, liquidationFactor, supplyCap)
		words, err := splitWords(assetInfo, 8)
		if err != nil {
			return nil, false, fmt.Errorf("compound v3 %s asset info: %w", c.chain, err)
		}
		asset := fmt.Sprintf("0x%040x", words[1])
		priceFeed := fmt.Sprintf("0x%040x", words[2])
		scale := wordToFloat(words[3], 1)
		liquidateCF := wordToFloat(words[5], 1e18)

		balance, err := c.callUintScaled(ctx,
			collateralBalanceOfSelector+encodeAddress(wallet)+encodeAddress(asset), 1)
		if err != nil {
			return nil, false, fmt.Errorf("compound v3 %s collateralBalanceOf: %w", c.chain, err)
		}
		if balance == 0 || scale == 0 {
			continue
		}

		price, err := c.callUintScaled(ctx, getPriceSelector+encodeAddress(priceFeed), cometPriceScale)
		if err != nil {
			return nil, false, fmt.Errorf("compound v3 %s getPrice: %w", c.chain, err)
		}

		collateralUSD += (balance / scale) * price
		if liquidateCF > liquidationFactor {
			liquidationFactor = liquidateCF
		}
	}

	if collateralUSD == 0 && borrowUSD == 0 && supplyUSD == 0 {
		return nil, false, nil
	}

	hf := core.InfiniteHealthFactor
	if borrowUSD > 0 && liquidationFactor > 0 {
		hf = (collateralUSD * liquidationFactor) / borrowUSD
	}

	return &core.Position{
		Protocol:             c.Name(),
		Chain:                c.chain,
		Wallet:               strings.ToLower(wallet),
		TotalCollateralUSD:   collateralUSD + supplyUSD,
		TotalDebtUSD:         borrowUSD,
		HealthFactor:         hf,
		LiquidationThreshold: liquidationFactor,
	}, true, nil
}

// GetDetailedPosition returns the aggregate position; Comet's base-token
// markets carry at most one debt asset, so there is no extra breakdown to
// fetch.
func (c *CompoundV3) GetDetailedPosition(ctx context.Context, wallet string) (*core.Position, bool, error) {
	return c.GetPosition(ctx, wallet)
}

func (c *CompoundV3) HasPosition(ctx context.Context, wallet string) (bool, error) {
	_, found, err := c.GetPosition(ctx, wallet)
	return found, err
}

func (c *CompoundV3) callUintScaled(ctx context.Context, data string, scale float64) (float64, error) {
	result, err := c.rpc.CallContract(ctx, c.comet, data)
	if err != nil {
		return 0, err
	}
	words, err := splitWords(result, 1)
	if err != nil {
		return 0, err
	}
	return wordToFloat(words[0], scale), nil
}
