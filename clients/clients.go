package clients

import (
	"go.uber.org/zap"

	"github.com/Alpha-M2/liquidation-alerter/clients/discord"
	"github.com/Alpha-M2/liquidation-alerter/clients/ethrpc"
	"github.com/Alpha-M2/liquidation-alerter/clients/notifier"
	"github.com/Alpha-M2/liquidation-alerter/clients/priceoracle"
	"github.com/Alpha-M2/liquidation-alerter/clients/telegram"
	"github.com/Alpha-M2/liquidation-alerter/config"
)

type Clients struct {
	Logger *zap.Logger

	Telegram *telegram.Client
	Discord  *discord.Client
	Notifier notifier.Channel // Combined channel for all configured outputs

	// RPC clients keyed by chain name, one per configured chain.
	RPC map[string]*ethrpc.Client

	// Price resolves USD prices and gas, backed by the Ethereum RPC.
	Price *priceoracle.Client
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	telegramClient := telegram.New(logger, cfg.Telegram.BotToken)
	discordClient := discord.New(logger, cfg.Discord.BotToken, cfg.Discord.ChannelID)

	multiChannel := notifier.NewMultiChannel(telegramClient, discordClient)

	rpc := make(map[string]*ethrpc.Client)
	for _, chain := range cfg.ConfiguredChains() {
		rpc[chain] = ethrpc.New(logger, chain, cfg.ChainFor(chain).RPCURL)
	}

	// Chainlink feeds live on mainnet; without an Ethereum RPC the oracle
	// runs on CoinGecko alone.
	price := priceoracle.New(logger, rpc["ethereum"])
	price.SetCoinGeckoBase(cfg.Monitor.CoinGeckoURL)

	return &Clients{
		Logger:   logger,
		Telegram: telegramClient,
		Discord:  discordClient,
		Notifier: multiChannel,
		RPC:      rpc,
		Price:    price,
	}
}

// Close shuts down every channel that holds a connection.
func (c *Clients) Close() error {
	return c.Notifier.Close()
}
