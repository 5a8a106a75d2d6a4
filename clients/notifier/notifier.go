// Package notifier defines the notification channel contract shared by the
// Telegram and Discord clients.
package notifier

import "context"

// Channel delivers a text message to a chat. Implementations must be safe
// for concurrent use.
type Channel interface {
	// Send delivers text to the chat identified by chatID. Channels that
	// broadcast to a fixed destination may ignore chatID.
	Send(ctx context.Context, chatID int64, text string) error
	Close() error
}

// MultiChannel fans a message out to every configured channel. A failure on
// one channel does not stop delivery to the others; the last error is
// returned so the caller can log it.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel builds a fan-out channel, skipping nil entries so callers
// can pass optional channels unconditionally.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	m := &MultiChannel{}
	for _, c := range channels {
		if c != nil {
			m.channels = append(m.channels, c)
		}
	}
	return m
}

// Len returns the number of active channels.
func (m *MultiChannel) Len() int {
	return len(m.channels)
}

func (m *MultiChannel) Send(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for _, c := range m.channels {
		if err := c.Send(ctx, chatID, text); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (m *MultiChannel) Close() error {
	var lastErr error
	for _, c := range m.channels {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
