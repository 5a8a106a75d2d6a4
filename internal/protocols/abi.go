package protocols

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// maxHealthFactorSentinel marks the on-chain "no debt" health factor:
// anything at or above 2^255 maps to an infinite health factor.
var maxHealthFactorSentinel = new(big.Int).Lsh(big.NewInt(1), 255)

// encodeAddress left-pads an address to a 32-byte ABI word.
func encodeAddress(addr string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	return strings.Repeat("0", 64-len(trimmed)) + trimmed
}

// encodeUint8 encodes a small integer as a 32-byte ABI word.
func encodeUint8(v uint8) string {
	return fmt.Sprintf("%064x", v)
}

// splitWords slices an eth_call result into 32-byte words, requiring at
// least n of them.
func splitWords(hexResult string, n int) ([]*big.Int, error) {
	raw := strings.TrimPrefix(hexResult, "0x")
	if len(raw) < n*64 {
		return nil, fmt.Errorf("result has %d chars, need %d words", len(raw), n)
	}
	words := make([]*big.Int, 0, n)
	for i := 0; i < n; i++ {
		w, ok := new(big.Int).SetString(raw[i*64:(i+1)*64], 16)
		if !ok {
			return nil, fmt.Errorf("bad word %d", i)
		}
		words = append(words, w)
	}
	return words, nil
}

// wordToFloat divides an ABI word by a decimal scale.
func wordToFloat(w *big.Int, scale float64) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(w), big.NewFloat(scale)).Float64()
	return f
}

// wordToHealthFactor converts an 18-decimal health factor word, mapping the
// on-chain sentinel to infinity.
func wordToHealthFactor(w *big.Int) float64 {
	if w.Cmp(maxHealthFactorSentinel) >= 0 {
		return math.Inf(1)
	}
	return wordToFloat(w, 1e18)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
