package app

import (
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Polling cadence by risk band. Riskier positions burn more RPC budget for
// faster detection.
const (
	pollIntervalNoDebt   = 600 * time.Second
	pollIntervalCritical = 30 * time.Second
	pollIntervalElevated = 120 * time.Second
	pollIntervalNormal   = 300 * time.Second
)

// PollingManager decides, per (wallet, protocol) pair, whether the position
// is due for a fresh chain read based on its last known health factor.
//
// A pair that has never been recorded is treated as having an infinite
// health factor, so a brand-new wallet runs at the slowest cadence until
// its first recorded check. The first ShouldCheck still returns true
// because there is no last-check time at all.
type PollingManager struct {
	logger *zap.Logger

	mu            sync.Mutex
	lastCheck     map[string]time.Time
	healthFactors map[string]float64

	now func() time.Time
}

func NewPollingManager(logger *zap.Logger) *PollingManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingManager{
		logger:        logger,
		lastCheck:     make(map[string]time.Time),
		healthFactors: make(map[string]float64),
		now:           time.Now,
	}
}

// Interval returns the polling interval for a health factor.
func Interval(hf float64) time.Duration {
	switch {
	case math.IsInf(hf, 1):
		return pollIntervalNoDebt
	case hf < 1.3:
		return pollIntervalCritical
	case hf < 2.0:
		return pollIntervalElevated
	default:
		return pollIntervalNormal
	}
}

// ShouldCheck reports whether the pair is due for a fresh read.
func (pm *PollingManager) ShouldCheck(wallet, protocol string) bool {
	key := pollKey(wallet, protocol)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	last, ok := pm.lastCheck[key]
	if !ok {
		return true
	}
	hf, ok := pm.healthFactors[key]
	if !ok {
		hf = math.Inf(1)
	}
	return pm.now().Sub(last) >= Interval(hf)
}

// RecordCheck stores the check time and observed health factor. It is
// called whether or not a position was found; absence is recorded as an
// infinite health factor.
func (pm *PollingManager) RecordCheck(wallet, protocol string, hf float64) {
	key := pollKey(wallet, protocol)

	pm.mu.Lock()
	pm.lastCheck[key] = pm.now()
	pm.healthFactors[key] = hf
	pm.mu.Unlock()
}

// LastHealthFactor returns the last recorded health factor for a pair.
func (pm *PollingManager) LastHealthFactor(wallet, protocol string) (float64, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	hf, ok := pm.healthFactors[pollKey(wallet, protocol)]
	return hf, ok
}

// Forget drops all state for a wallet, across protocols.
func (pm *PollingManager) Forget(wallet string) {
	prefix := strings.ToLower(wallet) + ":"

	pm.mu.Lock()
	for key := range pm.lastCheck {
		if strings.HasPrefix(key, prefix) {
			delete(pm.lastCheck, key)
			delete(pm.healthFactors, key)
		}
	}
	pm.mu.Unlock()
}

// Stats returns flat counters for the stats endpoint.
func (pm *PollingManager) Stats() map[string]int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	due := 0
	now := pm.now()
	for key, last := range pm.lastCheck {
		hf, ok := pm.healthFactors[key]
		if !ok {
			hf = math.Inf(1)
		}
		if now.Sub(last) >= Interval(hf) {
			due++
		}
	}
	return map[string]int{
		"tracked_pairs": len(pm.lastCheck),
		"due_pairs":     due,
	}
}

func pollKey(wallet, protocol string) string {
	return strings.ToLower(wallet) + ":" + protocol
}
