package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Telegram
	Telegram TelegramConfig `json:"telegram"`

	// Discord
	Discord DiscordConfig `json:"discord"`

	// Postgres
	Database DatabaseConfig `json:"database"`

	// Per-chain RPC endpoints
	Chains ChainsConfig `json:"chains"`

	// Position monitoring
	Monitor MonitorConfig `json:"monitor"`

	// Stats / metrics server
	StatsServer StatsServerConfig `json:"stats_server"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken string `json:"-"` // Excluded - env var only
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken  string `json:"-"` // Excluded - env var only
	ChannelID string `json:"channel_id"`
}

// DatabaseConfig holds Postgres configuration.
type DatabaseConfig struct {
	URL string `json:"-"` // Excluded - env var only (carries credentials)
}

// ChainConfig holds the RPC endpoints for one chain.
type ChainConfig struct {
	RPCURL string `json:"rpc_url"`
	WSURL  string `json:"ws_url"` // optional, enables the newHeads subscription
}

// ChainsConfig holds endpoints per supported chain.
type ChainsConfig struct {
	Ethereum ChainConfig `json:"ethereum"`
	Arbitrum ChainConfig `json:"arbitrum"`
	Base     ChainConfig `json:"base"`
	Optimism ChainConfig `json:"optimism"`
}

// MonitorConfig holds the monitoring loop configuration.
type MonitorConfig struct {
	Interval time.Duration `json:"interval"`

	// Default health factor thresholds for users who haven't set their own.
	WarningThreshold  float64 `json:"warning_threshold"`
	CriticalThreshold float64 `json:"critical_threshold"`

	// CoinGecko fallback for prices when Chainlink is stale or unreachable.
	CoinGeckoURL string `json:"coingecko_url"`
}

// StatsServerConfig holds the observability server configuration.
type StatsServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd:   false,
		Telegram: TelegramConfig{},
		Discord:  DiscordConfig{},
		Database: DatabaseConfig{},
		Chains:   ChainsConfig{},
		Monitor: MonitorConfig{
			Interval:          60 * time.Second,
			WarningThreshold:  1.5,
			CriticalThreshold: 1.1,
			CoinGeckoURL:      "https://api.coingecko.com/api/v3",
		},
		StatsServer: StatsServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Telegram: TelegramConfig{
			BotToken: envString("TELEGRAM_BOT_TOKEN", ""),
		},

		Discord: DiscordConfig{
			BotToken:  envString("DISCORD_BOT_TOKEN", ""),
			ChannelID: envString("DISCORD_CHANNEL_ID", ""),
		},

		Database: DatabaseConfig{
			URL: envString("DATABASE_URL", ""),
		},

		Chains: ChainsConfig{
			Ethereum: ChainConfig{
				RPCURL: envString("ETH_RPC_URL", ""),
				WSURL:  envString("ETH_WS_URL", ""),
			},
			Arbitrum: ChainConfig{
				RPCURL: envString("ARBITRUM_RPC_URL", ""),
				WSURL:  envString("ARBITRUM_WS_URL", ""),
			},
			Base: ChainConfig{
				RPCURL: envString("BASE_RPC_URL", ""),
				WSURL:  envString("BASE_WS_URL", ""),
			},
			Optimism: ChainConfig{
				RPCURL: envString("OPTIMISM_RPC_URL", ""),
				WSURL:  envString("OPTIMISM_WS_URL", ""),
			},
		},

		Monitor: MonitorConfig{
			Interval:          envDuration("MONITOR_INTERVAL", 60*time.Second),
			WarningThreshold:  envFloat("WARNING_THRESHOLD", 1.5),
			CriticalThreshold: envFloat("CRITICAL_THRESHOLD", 1.1),
			CoinGeckoURL:      envString("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		},

		StatsServer: StatsServerConfig{
			Enabled: envBoolDefault("STATS_SERVER_ENABLED", true),
			Port:    envInt("STATS_SERVER_PORT", 8080),
		},
	}
}

// ChainFor returns the endpoints for a chain by name. Unknown chains fall
// back to the Ethereum endpoints so a misnamed chain degrades to mainnet
// reads instead of nil pointers.
func (c *Config) ChainFor(chain string) ChainConfig {
	switch strings.ToLower(chain) {
	case "arbitrum":
		return c.Chains.Arbitrum
	case "base":
		return c.Chains.Base
	case "optimism":
		return c.Chains.Optimism
	default:
		return c.Chains.Ethereum
	}
}

// ConfiguredChains returns the names of chains with an RPC endpoint set.
func (c *Config) ConfiguredChains() []string {
	var chains []string
	for _, entry := range []struct {
		name string
		cfg  ChainConfig
	}{
		{"ethereum", c.Chains.Ethereum},
		{"arbitrum", c.Chains.Arbitrum},
		{"base", c.Chains.Base},
		{"optimism", c.Chains.Optimism},
	} {
		if entry.cfg.RPCURL != "" {
			chains = append(chains, entry.name)
		}
	}
	return chains
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
