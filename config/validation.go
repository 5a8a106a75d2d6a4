package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values. A failed validation is
// fatal at startup: running half-configured would silently drop alerts.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	if c.Telegram.BotToken == "" && c.Discord.BotToken == "" {
		errors = append(errors, ValidationError{
			Field:   "telegram.bot_token",
			Message: "at least one notification channel (Telegram or Discord) must be configured",
		})
	}

	if c.Discord.BotToken != "" && c.Discord.ChannelID == "" {
		errors = append(errors, ValidationError{
			Field:   "discord.channel_id",
			Message: "required when the Discord bot token is set",
		})
	}

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "DATABASE_URL is required",
		})
	}

	if len(c.ConfiguredChains()) == 0 {
		errors = append(errors, ValidationError{
			Field:   "chains",
			Message: "at least one chain RPC URL must be configured",
		})
	}

	errors = append(errors, validateMonitor(&c.Monitor)...)
	errors = append(errors, validateStatsServer(&c.StatsServer)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateMonitor(m *MonitorConfig) []ValidationError {
	var errors []ValidationError

	if m.Interval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "monitor.interval",
			Message: "must be at least 1 second",
		})
	}

	if m.WarningThreshold <= 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.warning_threshold",
			Message: "must be positive",
		})
	}

	if m.CriticalThreshold <= 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.critical_threshold",
			Message: "must be positive",
		})
	}

	if m.CoinGeckoURL == "" {
		errors = append(errors, ValidationError{
			Field:   "monitor.coingecko_url",
			Message: "must not be empty",
		})
	}

	return errors
}

func validateStatsServer(s *StatsServerConfig) []ValidationError {
	var errors []ValidationError

	if s.Enabled && (s.Port < 1 || s.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "stats_server.port",
			Message: "must be a valid port number",
		})
	}

	return errors
}
