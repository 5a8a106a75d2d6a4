package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Telegram.BotToken = "123:abc"
	cfg.Database.URL = "postgres://localhost/liqalert"
	cfg.Chains.Ethereum.RPCURL = "https://eth.example.com"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Monitor.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.WarningThreshold != 1.5 || cfg.Monitor.CriticalThreshold != 1.1 {
		t.Errorf("thresholds = %v/%v, want 1.5/1.1",
			cfg.Monitor.WarningThreshold, cfg.Monitor.CriticalThreshold)
	}
	if !cfg.StatsServer.Enabled || cfg.StatsServer.Port != 8080 {
		t.Errorf("stats server = %+v", cfg.StatsServer)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("DATABASE_URL", "postgres://db/liqalert")
	t.Setenv("ETH_RPC_URL", "https://eth.example.com")
	t.Setenv("ARBITRUM_RPC_URL", "https://arb.example.com")
	t.Setenv("MONITOR_INTERVAL", "30s")
	t.Setenv("WARNING_THRESHOLD", "1.8")
	t.Setenv("STATS_SERVER_PORT", "9090")
	t.Setenv("STAGE", "PROD")

	cfg := Load()
	if !cfg.IsProd {
		t.Error("STAGE=PROD should set IsProd")
	}
	if cfg.Telegram.BotToken != "tok" {
		t.Errorf("BotToken = %q", cfg.Telegram.BotToken)
	}
	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.WarningThreshold != 1.8 {
		t.Errorf("WarningThreshold = %v, want 1.8", cfg.Monitor.WarningThreshold)
	}
	if cfg.StatsServer.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.StatsServer.Port)
	}
	if got := cfg.ConfiguredChains(); len(got) != 2 {
		t.Errorf("ConfiguredChains = %v, want [ethereum arbitrum]", got)
	}
}

func TestLoadBadValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "not-a-duration")
	t.Setenv("WARNING_THRESHOLD", "abc")
	t.Setenv("STATS_SERVER_PORT", "many")

	cfg := Load()
	if cfg.Monitor.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want default 60s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.WarningThreshold != 1.5 {
		t.Errorf("WarningThreshold = %v, want default 1.5", cfg.Monitor.WarningThreshold)
	}
	if cfg.StatsServer.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.StatsServer.Port)
	}
}

func TestChainForFallsBackToEthereum(t *testing.T) {
	cfg := validConfig()
	cfg.Chains.Arbitrum.RPCURL = "https://arb.example.com"

	if got := cfg.ChainFor("arbitrum").RPCURL; got != "https://arb.example.com" {
		t.Errorf("ChainFor(arbitrum) = %q", got)
	}
	if got := cfg.ChainFor("unknown-chain").RPCURL; got != "https://eth.example.com" {
		t.Errorf("ChainFor(unknown) = %q, want ethereum fallback", got)
	}
}

func TestValidateValidConfig(t *testing.T) {
	result := validConfig().Validate()
	if !result.Valid {
		t.Errorf("expected valid config, got errors: %+v", result.Errors)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no channel", func(c *Config) { c.Telegram.BotToken = "" }, "telegram.bot_token"},
		{"discord without channel id", func(c *Config) { c.Discord.BotToken = "d" }, "discord.channel_id"},
		{"no database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"no chains", func(c *Config) { c.Chains.Ethereum.RPCURL = "" }, "chains"},
		{"interval too short", func(c *Config) { c.Monitor.Interval = 100 * time.Millisecond }, "monitor.interval"},
		{"bad warning threshold", func(c *Config) { c.Monitor.WarningThreshold = 0 }, "monitor.warning_threshold"},
		{"bad critical threshold", func(c *Config) { c.Monitor.CriticalThreshold = -1 }, "monitor.critical_threshold"},
		{"bad port", func(c *Config) { c.StatsServer.Port = 0 }, "stats_server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()
			if result.Valid {
				t.Fatal("expected validation failure")
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in %+v", tt.field, result.Errors)
			}
		})
	}
}
