package notifier

import (
	"context"
	"errors"
	"testing"
)

type recordingChannel struct {
	sent   []string
	sendErr error
	closed bool
}

func (r *recordingChannel) Send(_ context.Context, _ int64, text string) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingChannel) Close() error {
	r.closed = true
	return nil
}

func TestMultiChannelSkipsNil(t *testing.T) {
	a := &recordingChannel{}
	m := NewMultiChannel(nil, a, nil)
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestMultiChannelFanOut(t *testing.T) {
	a := &recordingChannel{}
	b := &recordingChannel{}
	m := NewMultiChannel(a, b)

	if err := m.Send(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.sent), len(b.sent))
	}
}

func TestMultiChannelContinuesPastFailure(t *testing.T) {
	bad := &recordingChannel{sendErr: errors.New("boom")}
	good := &recordingChannel{}
	m := NewMultiChannel(bad, good)

	err := m.Send(context.Background(), 7, "hello")
	if err == nil {
		t.Fatal("expected the failing channel's error to surface")
	}
	if len(good.sent) != 1 {
		t.Errorf("good channel got %d deliveries, want 1", len(good.sent))
	}
}

func TestMultiChannelClose(t *testing.T) {
	a := &recordingChannel{}
	b := &recordingChannel{}
	if err := NewMultiChannel(a, b).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("not all channels closed")
	}
}
