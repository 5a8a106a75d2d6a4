// Package priceoracle resolves asset prices in USD, preferring on-chain
// Chainlink feeds and falling back to CoinGecko when a feed is missing or
// unreadable.
package priceoracle

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/ethrpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultCoingeckoBase = "https://api.coingecko.com/api/v3"

	cacheTTL = 30 * time.Second
	// A Chainlink answer older than this is served but flagged stale.
	chainlinkStaleAfter = 1 * time.Hour

	// latestRoundData() on AggregatorV3Interface.
	latestRoundDataSelector = "0xfeaf968c"
	chainlinkDecimals       = 1e8
)

// Mainnet Chainlink USD feed addresses.
var chainlinkFeeds = map[string]string{
	"ETH":    "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	"WETH":   "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	"BTC":    "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
	"WBTC":   "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
	"USDC":   "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6",
	"USDT":   "0x3E7d1eAB13ad0104d2750B8863b489D65364e32D",
	"DAI":    "0xAed0c38402a5d19df6E4c03F4E2DceD6e29c1ee9",
	"LINK":   "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c",
	"AAVE":   "0x547a514d5e3769680Ce22B2361c10Ea13619e8a9",
	"STETH":  "0xCfE54B5cD566aB89272946F602D76Ea879CAb4a8",
}

// CoinGecko asset IDs for the fallback path.
var coingeckoIDs = map[string]string{
	"ETH":    "ethereum",
	"WETH":   "weth",
	"BTC":    "bitcoin",
	"WBTC":   "wrapped-bitcoin",
	"USDC":   "usd-coin",
	"USDT":   "tether",
	"DAI":    "dai",
	"LINK":   "chainlink",
	"AAVE":   "aave",
	"COMP":   "compound-governance-token",
	"STETH":  "staked-ether",
	"WSTETH": "wrapped-steth",
	"RETH":   "rocket-pool-eth",
	"CBETH":  "coinbase-wrapped-staked-eth",
}

// Quote is a resolved price. IsStale marks prices the oracle could only
// source from an out-of-date feed.
type Quote struct {
	Symbol    string
	Price     float64
	Source    string // "chainlink" or "coingecko"
	IsStale   bool
	Timestamp time.Time
}

type cacheEntry struct {
	quote    Quote
	cachedAt time.Time
}

// Client resolves prices, caching each symbol for a short TTL so a cycle
// over many positions does not hammer the sources.
type Client struct {
	logger        *zap.Logger
	rpc           *ethrpc.Client
	coingeckoBase string
	httpClient    *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// New builds a price client. rpc may be nil, in which case only the
// CoinGecko path is available.
func New(logger *zap.Logger, rpc *ethrpc.Client) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:        logger,
		rpc:           rpc,
		coingeckoBase: defaultCoingeckoBase,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		cache:         make(map[string]cacheEntry),
		now:           time.Now,
	}
}

// SetCoinGeckoBase overrides the CoinGecko API base URL. Empty input keeps
// the default.
func (c *Client) SetCoinGeckoBase(base string) {
	if base != "" {
		c.coingeckoBase = strings.TrimRight(base, "/")
	}
}

// Price resolves a symbol to USD. found is false when no source knows the
// symbol; err reports that all known sources failed.
func (c *Client) Price(ctx context.Context, symbol string) (Quote, bool, error) {
	symbol = strings.ToUpper(symbol)

	c.mu.Lock()
	entry, ok := c.cache[symbol]
	cachedFresh := ok && c.now().Sub(entry.cachedAt) < cacheTTL
	c.mu.Unlock()
	if cachedFresh {
		return entry.quote, true, nil
	}

	_, hasFeed := chainlinkFeeds[symbol]
	_, hasGecko := coingeckoIDs[symbol]
	if !hasFeed && !hasGecko {
		return Quote{}, false, nil
	}

	var firstErr error
	var staleQuote *Quote
	if hasFeed && c.rpc != nil {
		quote, err := c.chainlinkPrice(ctx, symbol)
		switch {
		case err != nil:
			firstErr = err
			c.logger.Warn("chainlink price failed", zap.String("symbol", symbol), zap.Error(err))
		case quote.IsStale:
			staleQuote = &quote
		default:
			c.store(symbol, quote)
			return quote, true, nil
		}
	}

	if hasGecko {
		quote, err := c.coingeckoPrice(ctx, symbol)
		if err == nil {
			c.store(symbol, quote)
			return quote, true, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	// A stale feed beats no price at all.
	if staleQuote != nil {
		c.logger.Warn("using stale chainlink price", zap.String("symbol", symbol))
		c.store(symbol, *staleQuote)
		return *staleQuote, true, nil
	}

	return Quote{}, true, fmt.Errorf("price for %s: %w", symbol, firstErr)
}

// GasPriceGwei returns the current gas price from the RPC endpoint.
func (c *Client) GasPriceGwei(ctx context.Context) (float64, error) {
	if c.rpc == nil {
		return 0, fmt.Errorf("no rpc client configured")
	}
	return c.rpc.GasPriceGwei(ctx)
}

func (c *Client) store(symbol string, quote Quote) {
	c.mu.Lock()
	c.cache[symbol] = cacheEntry{quote: quote, cachedAt: c.now()}
	c.mu.Unlock()
}

func (c *Client) chainlinkPrice(ctx context.Context, symbol string) (Quote, error) {
	feed := chainlinkFeeds[symbol]
	result, err := c.rpc.CallContract(ctx, feed, latestRoundDataSelector)
	if err != nil {
		return Quote{}, err
	}

	answer, updatedAt, err := decodeLatestRoundData(result)
	if err != nil {
		return Quote{}, fmt.Errorf("decode %s round data: %w", symbol, err)
	}

	price, _ := new(big.Float).Quo(new(big.Float).SetInt(answer), big.NewFloat(chainlinkDecimals)).Float64()
	if price <= 0 {
		return Quote{}, fmt.Errorf("non-positive answer for %s", symbol)
	}

	updated := time.Unix(int64(updatedAt), 0)
	return Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    "chainlink",
		IsStale:   c.now().Sub(updated) > chainlinkStaleAfter,
		Timestamp: updated,
	}, nil
}

// decodeLatestRoundData pulls answer and updatedAt out of the ABI-encoded
// (roundId, answer, startedAt, updatedAt, answeredInRound) tuple.
func decodeLatestRoundData(hexResult string) (answer *big.Int, updatedAt uint64, err error) {
	raw := strings.TrimPrefix(hexResult, "0x")
	if len(raw) < 5*64 {
		return nil, 0, fmt.Errorf("result too short: %d chars", len(raw))
	}

	answer, ok := new(big.Int).SetString(raw[64:128], 16)
	if !ok {
		return nil, 0, fmt.Errorf("bad answer word")
	}
	updatedBig, ok := new(big.Int).SetString(raw[192:256], 16)
	if !ok {
		return nil, 0, fmt.Errorf("bad updatedAt word")
	}
	return answer, updatedBig.Uint64(), nil
}

func (c *Client) coingeckoPrice(ctx context.Context, symbol string) (Quote, error) {
	id, ok := coingeckoIDs[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("no coingecko id for %s", symbol)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.coingeckoBase, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Quote{}, fmt.Errorf("decode response: %w", err)
	}
	price, ok := parsed[id]["usd"]
	if !ok || price <= 0 {
		return Quote{}, fmt.Errorf("no usd price for %s in response", id)
	}

	return Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    "coingecko",
		Timestamp: c.now(),
	}, nil
}
