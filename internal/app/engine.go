package app

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/notifier"
	"github.com/Alpha-M2/liquidation-alerter/clients/priceoracle"
	"github.com/Alpha-M2/liquidation-alerter/internal/core"
	"github.com/Alpha-M2/liquidation-alerter/internal/storage"
)

// cascadeCheckEvery runs the cascade detector on every Nth cycle.
const cascadeCheckEvery = 5

// positionFetchTimeout bounds a single adapter read.
const positionFetchTimeout = 15 * time.Second

// PriceSource is the slice of the price oracle the engine uses.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (priceoracle.Quote, bool, error)
	GasPriceGwei(ctx context.Context) (float64, error)
}

// SnapshotStore persists observed position states and yields the active
// user set each cycle.
type SnapshotStore interface {
	ActiveUsers(ctx context.Context) ([]storage.User, error)
	SaveSnapshot(ctx context.Context, snap storage.Snapshot) error
}

// BlockReader reads the chain head, used when no websocket subscription is
// feeding block numbers.
type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Engine drives the monitoring loop: one cycle runs to completion, then
// the loop sleeps for the configured interval. Per-position failures are
// logged and skipped; the cycle always finishes.
type Engine struct {
	logger   *zap.Logger
	interval time.Duration

	adapters []core.ProtocolAdapter
	polling  *PollingManager
	reorg    *ReorgTracker
	alerter  *Alerter
	cascade  *CascadeDetector
	price    PriceSource
	store    SnapshotStore
	channel  notifier.Channel
	readers  map[string]BlockReader // chain -> head reader
	metrics  *Metrics

	mu         sync.Mutex
	gas        *GasInfo
	cycleCount int
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Logger   *zap.Logger
	Interval time.Duration
	Adapters []core.ProtocolAdapter
	Polling  *PollingManager
	Reorg    *ReorgTracker
	Alerter  *Alerter
	Cascade  *CascadeDetector
	Price    PriceSource
	Store    SnapshotStore
	Channel  notifier.Channel
	Readers  map[string]BlockReader
	Metrics  *Metrics
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Engine{
		logger:   logger,
		interval: interval,
		adapters: cfg.Adapters,
		polling:  cfg.Polling,
		reorg:    cfg.Reorg,
		alerter:  cfg.Alerter,
		cascade:  cfg.Cascade,
		price:    cfg.Price,
		store:    cfg.Store,
		channel:  cfg.Channel,
		readers:  cfg.Readers,
		metrics:  cfg.Metrics,
	}
}

// Start launches the monitoring loop. Calling Start on a running engine is
// a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.running = true
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.logger.Info("monitoring engine started", zap.Duration("interval", e.interval))
	go func() {
		defer close(done)
		e.run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to wind down.
// Safe to call at any time, including before Start or twice.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.running = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	e.logger.Info("monitoring engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// First cycle immediately, then on the ticker.
	e.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	started := time.Now()

	e.refreshGas(ctx)
	e.refreshBlockNumbers(ctx)

	e.mu.Lock()
	e.cycleCount++
	cycle := e.cycleCount
	e.mu.Unlock()

	var cascadeAlerts []CascadeAlert
	if e.cascade != nil && cycle%cascadeCheckEvery == 0 {
		cascadeAlerts = e.cascade.CheckForCascades(ctx)
	}

	users, err := e.store.ActiveUsers(ctx)
	if err != nil {
		e.logger.Error("loading active users failed, skipping cycle", zap.Error(err))
		return
	}

	for _, user := range users {
		for _, wallet := range user.Wallets {
			select {
			case <-ctx.Done():
				return
			default:
			}
			e.checkWallet(ctx, user, wallet)
		}
	}

	if len(cascadeAlerts) > 0 {
		e.dispatchCascadeAlerts(ctx, cascadeAlerts, users)
	}

	if e.metrics != nil {
		e.metrics.CyclesTotal.Inc()
		e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}
	e.logger.Debug("cycle complete",
		zap.Int("cycle", cycle),
		zap.Int("users", len(users)),
		zap.Duration("took", time.Since(started)),
	)
}

// checkWallet fetches due positions for one wallet across all adapters.
// Independent adapters are queried concurrently; the tracker maps are
// internally locked.
func (e *Engine) checkWallet(ctx context.Context, user storage.User, wallet storage.Wallet) {
	var wg sync.WaitGroup
	for _, adapter := range e.adapters {
		if !e.polling.ShouldCheck(wallet.Address, adapter.Name()) {
			continue
		}
		wg.Add(1)
		go func(adapter core.ProtocolAdapter) {
			defer wg.Done()
			e.checkPosition(ctx, user, wallet, adapter)
		}(adapter)
	}
	wg.Wait()
}

func (e *Engine) checkPosition(ctx context.Context, user storage.User, wallet storage.Wallet, adapter core.ProtocolAdapter) {
	fetchCtx, cancel := context.WithTimeout(ctx, positionFetchTimeout)
	defer cancel()

	pos, found, err := adapter.GetPosition(fetchCtx, wallet.Address)
	if err != nil {
		// Leave the polling record untouched so the pair is retried
		// next cycle instead of waiting out a stale interval.
		if e.metrics != nil {
			e.metrics.RPCErrors.WithLabelValues(adapter.Chain()).Inc()
		}
		e.logger.Warn("position fetch failed",
			zap.String("wallet", wallet.Address),
			zap.String("protocol", adapter.Name()),
			zap.Error(err),
		)
		return
	}
	if !found {
		e.polling.RecordCheck(wallet.Address, adapter.Name(), core.InfiniteHealthFactor)
		return
	}

	if e.metrics != nil {
		e.metrics.PositionsChecked.Inc()
	}

	assessment, err := core.AssessHealth(pos, user.WarningThreshold, user.CriticalThreshold)
	if err != nil {
		e.logger.Error("health assessment failed",
			zap.String("wallet", wallet.Address),
			zap.String("protocol", adapter.Name()),
			zap.Error(err),
		)
		return
	}

	if err := e.store.SaveSnapshot(ctx, storage.Snapshot{
		WalletID:      wallet.ID,
		Protocol:      pos.Protocol,
		HealthFactor:  pos.HealthFactor,
		CollateralUSD: pos.TotalCollateralUSD,
		DebtUSD:       pos.TotalDebtUSD,
		ObservedAt:    time.Now(),
	}); err != nil {
		if e.metrics != nil {
			e.metrics.SnapshotErrors.Inc()
		}
		e.logger.Warn("snapshot write failed",
			zap.String("wallet", wallet.Address),
			zap.String("protocol", pos.Protocol),
			zap.Error(err),
		)
	}

	e.polling.RecordCheck(wallet.Address, adapter.Name(), pos.HealthFactor)

	block := e.reorg.BlockNumber(adapter.Chain())
	_, confirmed := e.reorg.RecordState(wallet.Address, adapter.Name(),
		pos.HealthFactor, pos.TotalCollateralUSD, pos.TotalDebtUSD, block)
	if confirmed == nil {
		// Not yet held across enough blocks; could still be reorged out.
		return
	}

	e.alerter.CheckAndAlert(ctx, user.ChatID, pos, assessment, e.currentGas())
}

// dispatchCascadeAlerts notifies users who have a known position on the
// affected protocol family.
func (e *Engine) dispatchCascadeAlerts(ctx context.Context, alerts []CascadeAlert, users []storage.User) {
	for _, alert := range alerts {
		if e.metrics != nil {
			e.metrics.CascadeAlerts.WithLabelValues(alert.Severity).Inc()
		}
		message := FormatCascadeWarning(alert)
		for _, user := range users {
			if !e.userExposedTo(user, alert.Protocol) {
				continue
			}
			if err := e.channel.Send(ctx, user.ChatID, message); err != nil {
				e.logger.Warn("cascade alert send failed",
					zap.Int64("chatID", user.ChatID),
					zap.String("protocol", alert.Protocol),
					zap.Error(err),
				)
			}
		}
	}
}

// userExposedTo reports whether any of the user's wallets has a live
// position on a protocol matching the cascade source family (the cascade
// label "Aave V3" matches the adapter name "Aave V3 (Ethereum)").
func (e *Engine) userExposedTo(user storage.User, cascadeProtocol string) bool {
	for _, wallet := range user.Wallets {
		for _, adapter := range e.adapters {
			if !strings.HasPrefix(adapter.Name(), cascadeProtocol) {
				continue
			}
			hf, ok := e.polling.LastHealthFactor(wallet.Address, adapter.Name())
			if ok && !math.IsInf(hf, 1) {
				return true
			}
		}
	}
	return false
}

func (e *Engine) refreshGas(ctx context.Context) {
	if e.price == nil {
		return
	}
	gasCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	gwei, err := e.price.GasPriceGwei(gasCtx)
	if err != nil {
		e.logger.Warn("gas price refresh failed", zap.Error(err))
		return
	}
	quote, found, err := e.price.Price(gasCtx, "ETH")
	if err != nil || !found {
		e.logger.Warn("eth price refresh failed", zap.Error(err))
		return
	}

	e.mu.Lock()
	e.gas = &GasInfo{GasPriceGwei: gwei, ETHPriceUSD: quote.Price}
	e.mu.Unlock()
}

func (e *Engine) currentGas() *GasInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gas
}

func (e *Engine) refreshBlockNumbers(ctx context.Context) {
	for chain, reader := range e.readers {
		blockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		block, err := reader.BlockNumber(blockCtx)
		cancel()
		if err != nil {
			if e.metrics != nil {
				e.metrics.RPCErrors.WithLabelValues(chain).Inc()
			}
			e.logger.Warn("block number refresh failed", zap.String("chain", chain), zap.Error(err))
			continue
		}
		e.reorg.UpdateBlockNumber(chain, block)
	}
}

// PositionsForWallet fetches current positions across all adapters,
// outside the monitoring cycle. Used by the command front end.
func (e *Engine) PositionsForWallet(ctx context.Context, wallet string) []*core.Position {
	return e.fetchAll(ctx, wallet, func(ctx context.Context, a core.ProtocolAdapter) (*core.Position, bool, error) {
		return a.GetPosition(ctx, wallet)
	})
}

// DetailedPositionsForWallet is PositionsForWallet with per-asset detail
// where the adapter supports it.
func (e *Engine) DetailedPositionsForWallet(ctx context.Context, wallet string) []*core.Position {
	return e.fetchAll(ctx, wallet, func(ctx context.Context, a core.ProtocolAdapter) (*core.Position, bool, error) {
		return a.GetDetailedPosition(ctx, wallet)
	})
}

func (e *Engine) fetchAll(ctx context.Context, wallet string,
	fetch func(context.Context, core.ProtocolAdapter) (*core.Position, bool, error)) []*core.Position {

	var (
		mu        sync.Mutex
		positions []*core.Position
		wg        sync.WaitGroup
	)
	for _, adapter := range e.adapters {
		wg.Add(1)
		go func(adapter core.ProtocolAdapter) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, positionFetchTimeout)
			defer cancel()

			pos, found, err := fetch(fetchCtx, adapter)
			if err != nil {
				e.logger.Warn("on-demand position fetch failed",
					zap.String("wallet", wallet),
					zap.String("protocol", adapter.Name()),
					zap.Error(err),
				)
				return
			}
			if !found {
				return
			}
			mu.Lock()
			positions = append(positions, pos)
			mu.Unlock()
		}(adapter)
	}
	wg.Wait()
	return positions
}

// Forget drops all tracker state for a wallet, used on /remove.
func (e *Engine) Forget(wallet string) {
	e.polling.Forget(wallet)
	e.reorg.Forget(wallet)
}

// Stats aggregates the trackers' flat counters under prefixed keys.
func (e *Engine) Stats() map[string]int {
	stats := make(map[string]int)
	merge := func(prefix string, m map[string]int) {
		for k, v := range m {
			stats[prefix+k] = v
		}
	}
	merge("polling_", e.polling.Stats())
	merge("reorg_", e.reorg.Stats())
	merge("alerter_", e.alerter.Stats())
	if e.cascade != nil {
		merge("cascade_", e.cascade.Stats())
	}

	e.mu.Lock()
	stats["cycles"] = e.cycleCount
	e.mu.Unlock()
	return stats
}
