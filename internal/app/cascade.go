package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/ethrpc"
)

// Cascade thresholds over a one-hour window; first match wins, most severe
// first.
const (
	cascadeWindow = 60 * time.Minute

	severeCount    = 20
	severeValueUSD = 10_000_000

	criticalCount    = 10
	criticalValueUSD = 5_000_000

	warningCount    = 5
	warningValueUSD = 1_000_000

	cascadeAlertCooldown = 30 * time.Minute

	// getLogs ranges are capped to keep public RPC endpoints happy.
	maxLogBlockRange = 1000
	// ~1 hour lookback at 12s mainnet blocks on the first check.
	defaultLookbackBlocks = 300
)

// EventSource describes where a protocol emits liquidation events.
type EventSource struct {
	Address string
	Topic   string
}

// Mainnet liquidation event sources keyed by protocol label.
var defaultEventSources = map[string]EventSource{
	"Aave V2": {
		Address: "0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9",
		Topic:   "0xe413a321e8681d831f4dbccbca790d2952b56f977908e45be37335533e005286",
	},
	"Aave V3": {
		Address: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
		Topic:   "0xe413a321e8681d831f4dbccbca790d2952b56f977908e45be37335533e005286",
	},
	"Compound V2": {
		Address: "0x3d9819210A31b4961b30EF54bE2aeD79B9c9Cd3B",
		Topic:   "0x298637f684da70674f26509b10f07ec2fbc77a335ab1e7d6215a4b2484d8bb52",
	},
}

// LiquidationEvent is one on-chain liquidation.
type LiquidationEvent struct {
	Protocol            string
	BlockNumber         uint64
	TxHash              string
	Liquidator          string
	Borrower            string
	DebtCoveredUSD      float64
	CollateralSeizedUSD float64
	Timestamp           time.Time
}

// CascadeAlert summarizes a burst of liquidations on one protocol.
type CascadeAlert struct {
	Protocol          string
	LiquidationCount  int
	TotalValueUSD     float64
	TimeWindowMinutes int
	AffectedAddresses []string
	Severity          string
	Timestamp         time.Time
}

// LogSource is the chain access the detector needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, address, topic0 string, fromBlock, toBlock uint64) ([]ethrpc.Log, error)
}

// CascadeDetector watches liquidation events across protocols for bursts
// that indicate systemic risk.
type CascadeDetector struct {
	logger  *zap.Logger
	source  LogSource
	sources map[string]EventSource

	mu               sync.Mutex
	recentEvents     map[string][]LiquidationEvent
	lastCheckedBlock map[string]uint64
	lastAlertAt      map[string]time.Time

	now func() time.Time
}

func NewCascadeDetector(logger *zap.Logger, source LogSource) *CascadeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadeDetector{
		logger:           logger,
		source:           source,
		sources:          defaultEventSources,
		recentEvents:     make(map[string][]LiquidationEvent),
		lastCheckedBlock: make(map[string]uint64),
		lastAlertAt:      make(map[string]time.Time),
		now:              time.Now,
	}
}

// CheckForCascades scans every configured protocol. A failure on one
// protocol is logged and does not stop the others.
func (cd *CascadeDetector) CheckForCascades(ctx context.Context) []CascadeAlert {
	var alerts []CascadeAlert
	for protocol, source := range cd.sources {
		alert, err := cd.checkProtocol(ctx, protocol, source)
		if err != nil {
			cd.logger.Error("cascade check failed",
				zap.String("protocol", protocol),
				zap.Error(err),
			)
			continue
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func (cd *CascadeDetector) checkProtocol(ctx context.Context, protocol string, source EventSource) (*CascadeAlert, error) {
	currentBlock, err := cd.source.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	cd.mu.Lock()
	startBlock, ok := cd.lastCheckedBlock[protocol]
	cd.mu.Unlock()
	if !ok {
		if currentBlock > defaultLookbackBlocks {
			startBlock = currentBlock - defaultLookbackBlocks
		}
	}
	if currentBlock <= startBlock {
		return nil, nil
	}
	if currentBlock-startBlock > maxLogBlockRange {
		startBlock = currentBlock - maxLogBlockRange
	}

	logs, err := cd.source.GetLogs(ctx, source.Address, source.Topic, startBlock, currentBlock)
	if err != nil {
		return nil, err
	}

	now := cd.now()
	cd.mu.Lock()
	for _, log := range logs {
		cd.recentEvents[protocol] = append(cd.recentEvents[protocol], parseLiquidationLog(protocol, log, now))
	}
	cd.lastCheckedBlock[protocol] = currentBlock
	cd.pruneLocked(protocol, now)
	cd.mu.Unlock()

	return cd.detectCascade(protocol)
}

// parseLiquidationLog extracts what it can without protocol-specific ABI
// decoding; the USD value is a rough estimate from the payload size.
// TODO: decode LiquidationCall data for real debt/collateral amounts.
func parseLiquidationLog(protocol string, log ethrpc.Log, at time.Time) LiquidationEvent {
	block, _ := log.BlockNumberUint()

	var liquidator, borrower string
	if len(log.Topics) > 1 {
		liquidator = log.Topics[1]
	}
	if len(log.Topics) > 2 {
		borrower = log.Topics[2]
	}

	dataBytes := len(strings.TrimPrefix(log.Data, "0x")) / 2
	estimatedUSD := float64(dataBytes) * 100

	return LiquidationEvent{
		Protocol:            protocol,
		BlockNumber:         block,
		TxHash:              log.TxHash,
		Liquidator:          liquidator,
		Borrower:            borrower,
		DebtCoveredUSD:      estimatedUSD,
		CollateralSeizedUSD: estimatedUSD * 1.1,
		Timestamp:           at,
	}
}

func (cd *CascadeDetector) pruneLocked(protocol string, now time.Time) {
	cutoff := now.Add(-cascadeWindow)
	events := cd.recentEvents[protocol]
	kept := events[:0]
	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	cd.recentEvents[protocol] = kept
}

func (cd *CascadeDetector) detectCascade(protocol string) (*CascadeAlert, error) {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	events := cd.recentEvents[protocol]
	if len(events) == 0 {
		return nil, nil
	}

	count := len(events)
	var totalValue float64
	affected := make(map[string]struct{})
	for _, e := range events {
		totalValue += e.DebtCoveredUSD
		if e.Borrower != "" {
			affected[e.Borrower] = struct{}{}
		}
	}

	var severity string
	switch {
	case count >= severeCount || totalValue >= severeValueUSD:
		severity = "severe"
	case count >= criticalCount || totalValue >= criticalValueUSD:
		severity = "critical"
	case count >= warningCount || totalValue >= warningValueUSD:
		severity = "warning"
	default:
		return nil, nil
	}

	now := cd.now()
	if last, ok := cd.lastAlertAt[protocol]; ok && now.Sub(last) < cascadeAlertCooldown {
		return nil, nil
	}
	cd.lastAlertAt[protocol] = now

	addresses := make([]string, 0, len(affected))
	for addr := range affected {
		addresses = append(addresses, addr)
	}

	cd.logger.Warn("liquidation cascade detected",
		zap.String("protocol", protocol),
		zap.Int("count", count),
		zap.Float64("totalValueUSD", totalValue),
		zap.String("severity", severity),
	)

	return &CascadeAlert{
		Protocol:          protocol,
		LiquidationCount:  count,
		TotalValueUSD:     totalValue,
		TimeWindowMinutes: int(cascadeWindow.Minutes()),
		AffectedAddresses: addresses,
		Severity:          severity,
		Timestamp:         now,
	}, nil
}

// Stats returns flat counters for the stats endpoint.
func (cd *CascadeDetector) Stats() map[string]int {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	total := 0
	for _, events := range cd.recentEvents {
		total += len(events)
	}
	return map[string]int{
		"monitored_protocols": len(cd.sources),
		"recent_events":       total,
		"alerted_protocols":   len(cd.lastAlertAt),
	}
}
