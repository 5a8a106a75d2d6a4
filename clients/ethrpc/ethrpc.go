// Package ethrpc is a minimal Ethereum JSON-RPC client covering the calls
// the monitor needs: block number, gas price, logs, and read-only contract
// calls.
package ethrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Log is one entry from eth_getLogs.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
}

// BlockNumberUint parses the hex block number field.
func (l Log) BlockNumberUint() (uint64, error) {
	return ParseHexUint(l.BlockNumber)
}

// Client issues JSON-RPC requests to a single endpoint.
type Client struct {
	logger *zap.Logger
	url    string
	chain  string
	client *http.Client
	nextID atomic.Int64
}

func New(logger *zap.Logger, chain, url string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger: logger,
		url:    url,
		chain:  chain,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Chain names the chain this client points at.
func (c *Client) Chain() string {
	return c.chain
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *rpcError           `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: rpc endpoint returned status %d", method, resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, parsed.Error.Code, parsed.Error.Message)
	}
	if err := json.Unmarshal(parsed.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.call(ctx, "eth_blockNumber", []interface{}{}, &hex); err != nil {
		return 0, err
	}
	return ParseHexUint(hex)
}

// GasPriceGwei returns the current gas price in gwei.
func (c *Client) GasPriceGwei(ctx context.Context) (float64, error) {
	var hex string
	if err := c.call(ctx, "eth_gasPrice", []interface{}{}, &hex); err != nil {
		return 0, err
	}
	wei, err := ParseHexBig(hex)
	if err != nil {
		return 0, err
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei, nil
}

// CallContract performs a read-only eth_call against the latest block and
// returns the hex-encoded result.
func (c *Client) CallContract(ctx context.Context, to, data string) (string, error) {
	var result string
	params := []interface{}{
		map[string]string{"to": to, "data": data},
		"latest",
	}
	if err := c.call(ctx, "eth_call", params, &result); err != nil {
		return "", err
	}
	return result, nil
}

// GetLogs fetches logs emitted by address matching topic0 in the given
// inclusive block range.
func (c *Client) GetLogs(ctx context.Context, address, topic0 string, fromBlock, toBlock uint64) ([]Log, error) {
	var logs []Log
	filter := map[string]interface{}{
		"address":   address,
		"topics":    []string{topic0},
		"fromBlock": fmt.Sprintf("0x%x", fromBlock),
		"toBlock":   fmt.Sprintf("0x%x", toBlock),
	}
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// ParseHexUint parses a 0x-prefixed hex quantity into a uint64.
func ParseHexUint(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity %q", s)
	}
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return v, nil
}

// ParseHexBig parses a 0x-prefixed hex quantity of arbitrary size.
func ParseHexBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty hex quantity %q", s)
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("parse hex quantity %q", s)
	}
	return v, nil
}
