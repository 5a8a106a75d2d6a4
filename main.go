package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	clts "github.com/Alpha-M2/liquidation-alerter/clients"
	"github.com/Alpha-M2/liquidation-alerter/clients/ethrpc"
	"github.com/Alpha-M2/liquidation-alerter/config"
	"github.com/Alpha-M2/liquidation-alerter/internal/app"
	"github.com/Alpha-M2/liquidation-alerter/internal/core"
	"github.com/Alpha-M2/liquidation-alerter/internal/protocols"
	"github.com/Alpha-M2/liquidation-alerter/internal/storage"
)

// startupTimeout bounds the initial database round-trips.
const startupTimeout = 30 * time.Second

// shutdownTimeout bounds the stats server drain on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config from environment variables
	cfg := config.Load()
	logger.Info("starting liquidation alerter", zap.Bool("isProd", cfg.IsProd))

	if result := cfg.Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid configuration",
				zap.String("field", e.Field),
				zap.String("message", e.Message),
			)
		}
		logger.Fatal("configuration validation failed")
	}

	// Database
	store, err := storage.Open(logger, cfg.Database.URL)
	if err != nil {
		logger.Fatal("opening database failed", zap.Error(err))
	}
	defer store.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), startupTimeout)
	if err := store.EnsureSchema(startupCtx); err != nil {
		startupCancel()
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	startupCancel()

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Close()

	// Protocol adapters, one per protocol per configured chain.
	var adapters []core.ProtocolAdapter
	for chain, rpc := range clients.RPC {
		if aave, err := protocols.NewAaveV3(logger, rpc, chain); err != nil {
			logger.Warn("aave v3 not available", zap.String("chain", chain), zap.Error(err))
		} else {
			adapters = append(adapters, aave)
		}
		if compound, err := protocols.NewCompoundV3(logger, rpc, chain); err != nil {
			logger.Warn("compound v3 not available", zap.String("chain", chain), zap.Error(err))
		} else {
			adapters = append(adapters, compound)
		}
	}
	if len(adapters) == 0 {
		logger.Fatal("no protocol adapters could be constructed")
	}

	registry := prometheus.NewRegistry()
	metrics := app.NewMetrics(registry)

	polling := app.NewPollingManager(logger)
	reorg := app.NewReorgTracker(logger)
	alerter := app.NewAlerter(logger, clients.Notifier, metrics)

	// Cascade detection needs mainnet logs; without an Ethereum RPC it is
	// disabled.
	var cascade *app.CascadeDetector
	if ethRPC, ok := clients.RPC["ethereum"]; ok {
		cascade = app.NewCascadeDetector(logger, ethRPC)
	} else {
		logger.Warn("no ethereum RPC configured, cascade detection disabled")
	}

	readers := make(map[string]app.BlockReader, len(clients.RPC))
	for chain, rpc := range clients.RPC {
		readers[chain] = rpc
	}

	engine := app.NewEngine(app.EngineConfig{
		Logger:   logger,
		Interval: cfg.Monitor.Interval,
		Adapters: adapters,
		Polling:  polling,
		Reorg:    reorg,
		Alerter:  alerter,
		Cascade:  cascade,
		Price:    clients.Price,
		Store:    store,
		Channel:  clients.Notifier,
		Readers:  readers,
		Metrics:  metrics,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	// Websocket head subscriptions keep block numbers fresher than the
	// per-cycle polls; failures degrade to polling.
	startHeadSubscribers(ctx, logger, cfg, reorg)

	var statsServer *app.StatsServer
	if cfg.StatsServer.Enabled {
		statsServer = app.NewStatsServer(logger, cfg.StatsServer.Port, engine, registry)
		go statsServer.Start()
	}

	commands := app.NewCommandHandler(logger, clients.Telegram, store, engine, alerter)
	go commands.Run(ctx)

	engine.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	engine.Stop()
	if statsServer != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := statsServer.Shutdown(drainCtx); err != nil {
			logger.Warn("stats server shutdown failed", zap.Error(err))
		}
		drainCancel()
	}
}

// startHeadSubscribers connects a newHeads subscription for every chain
// with a websocket URL configured.
func startHeadSubscribers(ctx context.Context, logger *zap.Logger, cfg *config.Config, reorg *app.ReorgTracker) {
	for _, chain := range cfg.ConfiguredChains() {
		wsURL := cfg.ChainFor(chain).WSURL
		if wsURL == "" {
			continue
		}
		sub := ethrpc.NewHeadSubscriber(logger, chain, wsURL, reorg.UpdateBlockNumber)
		if err := sub.Connect(ctx); err != nil {
			logger.Warn("head subscription failed, falling back to polling",
				zap.String("chain", chain),
				zap.Error(err),
			)
			continue
		}
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
}
