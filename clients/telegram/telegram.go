// Package telegram implements the Telegram Bot API client used both as a
// notification channel and as the command front end.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// longPollTimeout is the server-side hold time for getUpdates.
const longPollTimeout = 25 * time.Second

// Client talks to the Telegram Bot API. A client constructed without a
// token degrades to a no-op sender so the rest of the system keeps running.
type Client struct {
	logger   *zap.Logger
	botToken string
	apiBase  string
	client   *http.Client
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

func New(logger *zap.Logger, botToken string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if botToken == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, Telegram alerts disabled")
		return &Client{logger: logger}
	}

	logger.Info("telegram bot initialized")
	return &Client{
		logger:   logger,
		botToken: botToken,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: longPollTimeout + 10*time.Second},
	}
}

// Send delivers a Markdown-formatted message to the chat.
// Implements notifier.Channel.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if c.botToken == "" {
		c.logger.Warn("telegram not configured, skipping message")
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// Updates long-polls getUpdates for incoming commands. offset should be the
// highest seen update ID plus one.
func (c *Client) Updates(ctx context.Context, offset int64) ([]Update, error) {
	if c.botToken == "" {
		return nil, nil
	}

	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         int(longPollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("getUpdates"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	var parsed struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram API reported not ok")
	}
	return parsed.Result, nil
}

// Configured reports whether the client has a bot token and can actually
// talk to Telegram.
func (c *Client) Configured() bool {
	return c.botToken != ""
}

// Close cleans up resources. Implements notifier.Channel.
func (c *Client) Close() error {
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.botToken, method)
}

// EscapeMarkdown escapes the characters Telegram's legacy Markdown mode
// treats as formatting.
func EscapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
