// Package discord implements the Discord notification channel. Discord is
// used as a broadcast mirror: every alert goes to one configured channel,
// so the chat ID on Send is ignored.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Client struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

// New opens a Discord session. With an empty token or channel ID the client
// degrades to a no-op so alerts still flow through the other channels.
func New(logger *zap.Logger, botToken, channelID string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if botToken == "" || channelID == "" {
		logger.Warn("DISCORD_BOT_TOKEN or DISCORD_CHANNEL_ID not set, Discord alerts disabled")
		return &Client{logger: logger}
	}

	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		logger.Error("failed to create discord session, Discord alerts disabled", zap.Error(err))
		return &Client{logger: logger}
	}

	logger.Info("discord bot initialized", zap.String("channelID", channelID))
	return &Client{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}
}

// Send posts text to the configured channel. Implements notifier.Channel.
func (c *Client) Send(ctx context.Context, _ int64, text string) error {
	if c.session == nil {
		c.logger.Warn("discord not configured, skipping message")
		return nil
	}
	if _, err := c.session.ChannelMessageSend(c.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the underlying session. Implements notifier.Channel.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
