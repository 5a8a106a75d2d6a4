package app

import (
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Confirmation depths. Critical observations confirm faster so a real
// emergency is not sat on, while still filtering single-block noise.
const (
	confirmationBlocks         = 3
	criticalConfirmationBlocks = 2

	stateHistorySize = 10

	// Equivalence tolerances when matching history entries, relative.
	hfTolerance     = 0.01
	amountTolerance = 0.005
)

// observation is one sampled position state at a block height.
type observation struct {
	healthFactor  float64
	collateralUSD float64
	debtUSD       float64
	blockNumber   uint64
}

// ConfirmedState is an observation that has persisted long enough across
// blocks to be trusted by the alerting path.
type ConfirmedState struct {
	HealthFactor     float64
	CollateralUSD    float64
	DebtUSD          float64
	IsCritical       bool
	IsLiquidatable   bool
	FirstSeenBlock   uint64
	ConfirmedAtBlock uint64
}

// ReorgTracker suppresses false alerts caused by transient block data: an
// observation only reaches the alerter after it has held steady for a
// confirmation depth's worth of blocks.
type ReorgTracker struct {
	logger *zap.Logger

	mu           sync.Mutex
	history      map[string][]observation
	confirmed    map[string]ConfirmedState
	blockNumbers map[string]uint64
}

func NewReorgTracker(logger *zap.Logger) *ReorgTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReorgTracker{
		logger:       logger,
		history:      make(map[string][]observation),
		confirmed:    make(map[string]ConfirmedState),
		blockNumbers: make(map[string]uint64),
	}
}

// UpdateBlockNumber records the latest block for a chain. Safe to call from
// the websocket head subscription.
func (rt *ReorgTracker) UpdateBlockNumber(chain string, block uint64) {
	rt.mu.Lock()
	if block > rt.blockNumbers[chain] {
		rt.blockNumbers[chain] = block
	}
	rt.mu.Unlock()
}

// BlockNumber returns the latest known block for a chain.
func (rt *ReorgTracker) BlockNumber(chain string) uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.blockNumbers[chain]
}

// RecordState appends an observation and, if it has persisted across
// enough blocks, promotes it to the confirmed state. The returned flag is
// true when the newly confirmed state differs in critical/liquidatable
// classification from the previously confirmed one; the pointer is nil
// while no confirmed state is available and the caller must not alert.
func (rt *ReorgTracker) RecordState(wallet, protocol string, hf, collateralUSD, debtUSD float64, block uint64) (bool, *ConfirmedState) {
	key := reorgKey(wallet, protocol)
	current := observation{
		healthFactor:  hf,
		collateralUSD: collateralUSD,
		debtUSD:       debtUSD,
		blockNumber:   block,
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	history := append(rt.history[key], current)
	if len(history) > stateHistorySize {
		history = history[len(history)-stateHistorySize:]
	}
	rt.history[key] = history

	// A single sample can always be a reorg artifact.
	if len(history) < 2 {
		return false, nil
	}

	isLiquidatable := hf <= 1.0
	isCritical := hf < 1.3
	required := confirmationBlocks
	if isCritical || isLiquidatable {
		required = criticalConfirmationBlocks
	}

	earliest := current.blockNumber
	for _, past := range history {
		if observationsMatch(past, current) && past.blockNumber < earliest {
			earliest = past.blockNumber
		}
	}
	blocksConfirmed := int(block - earliest + 1)
	if blocksConfirmed < required {
		return false, nil
	}

	previous, hadPrevious := rt.confirmed[key]
	state := ConfirmedState{
		HealthFactor:     hf,
		CollateralUSD:    collateralUSD,
		DebtUSD:          debtUSD,
		IsCritical:       isCritical,
		IsLiquidatable:   isLiquidatable,
		FirstSeenBlock:   earliest,
		ConfirmedAtBlock: block,
	}
	rt.confirmed[key] = state

	novel := !hadPrevious ||
		previous.IsCritical != state.IsCritical ||
		previous.IsLiquidatable != state.IsLiquidatable
	return novel, &state
}

// ConfirmedFor returns the current confirmed state for a pair.
func (rt *ReorgTracker) ConfirmedFor(wallet, protocol string) (ConfirmedState, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	state, ok := rt.confirmed[reorgKey(wallet, protocol)]
	return state, ok
}

// Forget drops history and confirmed state for a wallet across protocols.
func (rt *ReorgTracker) Forget(wallet string) {
	prefix := strings.ToLower(wallet) + ":"

	rt.mu.Lock()
	for key := range rt.history {
		if strings.HasPrefix(key, prefix) {
			delete(rt.history, key)
			delete(rt.confirmed, key)
		}
	}
	rt.mu.Unlock()
}

// Stats returns flat counters for the stats endpoint.
func (rt *ReorgTracker) Stats() map[string]int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return map[string]int{
		"tracked_pairs":    len(rt.history),
		"confirmed_states": len(rt.confirmed),
		"tracked_chains":   len(rt.blockNumbers),
	}
}

// observationsMatch applies the equivalence tolerances: 1% relative on
// health factor, 0.5% relative on collateral and debt.
func observationsMatch(a, b observation) bool {
	return withinRelative(a.healthFactor, b.healthFactor, hfTolerance) &&
		withinRelative(a.collateralUSD, b.collateralUSD, amountTolerance) &&
		withinRelative(a.debtUSD, b.debtUSD, amountTolerance)
}

func withinRelative(a, b, tolerance float64) bool {
	if math.IsInf(a, 1) || math.IsInf(b, 1) {
		return math.IsInf(a, 1) && math.IsInf(b, 1)
	}
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return true
	}
	return math.Abs(a-b)/larger <= tolerance
}

func reorgKey(wallet, protocol string) string {
	return strings.ToLower(wallet) + ":" + protocol
}
