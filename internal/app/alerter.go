package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/notifier"
	"github.com/Alpha-M2/liquidation-alerter/internal/core"
)

// Alert reasons, recorded in logs and metrics.
const (
	ReasonFirstAlert         = "first_alert"
	ReasonStatusWorsened     = "status_worsened"
	ReasonSignificantHFDrop  = "significant_hf_drop"
	ReasonCooldownExpired    = "cooldown_expired"
	ReasonRapidDeterioration = "rapid_deterioration"
)

// significantDropPct re-fires an alert when the health factor fell more
// than this much, relative, since the last alert.
const significantDropPct = 10.0

// rapidDeteriorationPct forces an alert when the trailing 60-minute drop
// exceeds this, even for a healthy position.
const rapidDeteriorationPct = 10.0

const deteriorationWindow = 60 * time.Minute

// Cooldown between repeat alerts at an unchanged status.
var alertCooldowns = map[core.HealthStatus]time.Duration{
	core.StatusLiquidatable: 5 * time.Minute,
	core.StatusCritical:     15 * time.Minute,
	core.StatusWarning:      1 * time.Hour,
	core.StatusHealthy:      24 * time.Hour,
}

// Gas gate: cost of a typical remediation transaction versus collateral.
const (
	remediationGasUnits  = 200_000
	gasCostCollateralPct = 0.05
)

// AlertRecord is the per-(chat, wallet, protocol) dispatch state.
type AlertRecord struct {
	Status       core.HealthStatus
	HealthFactor float64
	LastAlertAt  time.Time
	AlertCount   int
}

// GasInfo carries the latest gas and ETH prices for the gas-economics
// gate; nil means unknown and skips the gate.
type GasInfo struct {
	GasPriceGwei float64
	ETHPriceUSD  float64
}

// Alerter decides when a position's state is worth a notification and
// dispatches it. Failed sends leave the record untouched so the alert is
// retried on the next cycle.
type Alerter struct {
	logger  *zap.Logger
	channel notifier.Channel
	metrics *Metrics

	mu        sync.Mutex
	records   map[string]*AlertRecord
	histories map[string]*HealthHistory

	now func() time.Time
}

func NewAlerter(logger *zap.Logger, channel notifier.Channel, metrics *Metrics) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		logger:    logger,
		channel:   channel,
		metrics:   metrics,
		records:   make(map[string]*AlertRecord),
		histories: make(map[string]*HealthHistory),
		now:       time.Now,
	}
}

// CheckAndAlert runs the dispatch decision for one assessed position and
// sends the alert when warranted. Returns whether an alert was delivered.
// Send failures are logged and reported as not-delivered, never as errors:
// the monitoring cycle must not stall on a flaky channel.
func (a *Alerter) CheckAndAlert(ctx context.Context, chatID int64, pos *core.Position,
	assessment core.HealthAssessment, gas *GasInfo) bool {

	now := a.now()
	historyKey := pollKey(pos.Wallet, pos.Protocol)

	a.mu.Lock()
	history, ok := a.histories[historyKey]
	if !ok {
		history = NewHealthHistory()
		a.histories[historyKey] = history
	}
	history.Add(now, assessment.HealthFactor)
	dropPct, hasDrop := history.TrailingDropPct(now, deteriorationWindow)
	a.mu.Unlock()

	rapidDeterioration := hasDrop && dropPct > rapidDeteriorationPct

	key := alertKey(chatID, pos.Wallet, pos.Protocol)
	shouldFire, reason := a.shouldAlert(key, assessment, now)

	if !shouldFire && rapidDeterioration {
		shouldFire = true
		reason = ReasonRapidDeterioration
	}
	if !shouldFire {
		if a.metrics != nil {
			a.metrics.AlertsSuppressed.Inc()
		}
		return false
	}

	message := FormatAlert(pos, assessment, reason, a.gasWarning(pos, gas))
	if err := a.channel.Send(ctx, chatID, message); err != nil {
		a.logger.Error("alert send failed, will retry next cycle",
			zap.Int64("chatID", chatID),
			zap.String("wallet", pos.Wallet),
			zap.String("protocol", pos.Protocol),
			zap.Error(err),
		)
		return false
	}

	a.mu.Lock()
	record, ok := a.records[key]
	if !ok {
		record = &AlertRecord{}
		a.records[key] = record
	}
	record.Status = assessment.Status
	record.HealthFactor = assessment.HealthFactor
	record.LastAlertAt = now
	record.AlertCount++
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.AlertsSent.WithLabelValues(reason).Inc()
	}
	a.logger.Info("alert sent",
		zap.Int64("chatID", chatID),
		zap.String("wallet", pos.Wallet),
		zap.String("protocol", pos.Protocol),
		zap.String("status", assessment.Status.String()),
		zap.String("reason", reason),
		zap.Float64("hf", assessment.HealthFactor),
	)
	return true
}

// shouldAlert applies the dispatch rules in priority order. Healthy
// positions with an existing record only re-fire on the long healthy
// cooldown; healthy positions with no record at all do not fire (the rapid
// deterioration watchdog is the only path that alerts on first-seen
// healthy state).
func (a *Alerter) shouldAlert(key string, assessment core.HealthAssessment, now time.Time) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	record, ok := a.records[key]
	if !ok {
		if assessment.Status == core.StatusHealthy {
			return false, ""
		}
		return true, ReasonFirstAlert
	}

	if assessment.Status > record.Status {
		return true, ReasonStatusWorsened
	}

	if !math.IsInf(record.HealthFactor, 1) && record.HealthFactor > 0 && !math.IsInf(assessment.HealthFactor, 1) {
		dropPct := (record.HealthFactor - assessment.HealthFactor) / record.HealthFactor * 100
		if dropPct > significantDropPct {
			return true, ReasonSignificantHFDrop
		}
	}

	if assessment.Status == core.StatusHealthy {
		return false, ""
	}
	if now.Sub(record.LastAlertAt) >= alertCooldowns[assessment.Status] {
		return true, ReasonCooldownExpired
	}
	return false, ""
}

// gasWarning returns a warning line when the estimated remediation cost
// exceeds 5% of the position's collateral. It only ever adds information,
// it never suppresses the alert.
func (a *Alerter) gasWarning(pos *core.Position, gas *GasInfo) string {
	if gas == nil || pos.TotalCollateralUSD <= 0 {
		return ""
	}
	costUSD := remediationCostUSD(gas.GasPriceGwei, gas.ETHPriceUSD)
	if costUSD <= gasCostCollateralPct*pos.TotalCollateralUSD {
		return ""
	}
	return fmt.Sprintf("Gas warning: a remediation tx costs ~$%.2f at %.0f gwei, over 5%% of this position's collateral.",
		costUSD, gas.GasPriceGwei)
}

// remediationCostUSD prices a 200k-gas transaction.
func remediationCostUSD(gasPriceGwei, ethPriceUSD float64) float64 {
	return remediationGasUnits * gasPriceGwei * 1e-9 * ethPriceUSD
}

// ClearHistory removes dispatch records for a chat, optionally scoped to
// one wallet. Used when a wallet is removed.
func (a *Alerter) ClearHistory(chatID int64, wallet string) {
	prefix := fmt.Sprintf("%d:", chatID)
	if wallet != "" {
		prefix = fmt.Sprintf("%d:%s:", chatID, strings.ToLower(wallet))
	}

	a.mu.Lock()
	for key := range a.records {
		if strings.HasPrefix(key, prefix) {
			delete(a.records, key)
		}
	}
	a.mu.Unlock()
}

// Stats returns flat counters for the stats endpoint.
func (a *Alerter) Stats() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, record := range a.records {
		total += record.AlertCount
	}
	return map[string]int{
		"alert_keys":      len(a.records),
		"alerts_sent":     total,
		"health_tracking": len(a.histories),
	}
}

func alertKey(chatID int64, wallet, protocol string) string {
	return fmt.Sprintf("%d:%s:%s", chatID, strings.ToLower(wallet), protocol)
}
