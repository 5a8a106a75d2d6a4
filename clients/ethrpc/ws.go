package ethrpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// HeadSubscriber keeps the latest block number fresh between polling cycles
// by subscribing to eth_subscribe newHeads over websocket. It is optional:
// without a websocket URL the engine falls back to polling
// eth_blockNumber each cycle.
type HeadSubscriber struct {
	logger *zap.Logger
	chain  string
	wsURL  string
	dialer *websocket.Dialer

	// onNewHead is invoked from the read loop for each new block.
	onNewHead func(chain string, block uint64)

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closeCh chan struct{}

	headCount        uint64
	lastHeadUnixNano int64
}

func NewHeadSubscriber(logger *zap.Logger, chain, wsURL string, onNewHead func(chain string, block uint64)) *HeadSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeadSubscriber{
		logger:    logger,
		chain:     chain,
		wsURL:     wsURL,
		dialer:    websocket.DefaultDialer,
		onNewHead: onNewHead,
		closeCh:   make(chan struct{}),
	}
}

// Connect dials the websocket endpoint and subscribes to newHeads. The
// subscription is torn down when ctx is cancelled.
func (s *HeadSubscriber) Connect(ctx context.Context) error {
	s.connMu.Lock()
	alreadyConnected := s.conn != nil
	s.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial head ws: %w", err)
	}

	s.logger.Info("head subscription dialed",
		zap.String("chain", s.chain),
		zap.String("url", s.wsURL),
	)

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []interface{}{"newHeads"},
	}
	if err := s.writeJSON(sub); err != nil {
		_ = conn.Close()
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		return fmt.Errorf("send newHeads subscription: %w", err)
	}

	go s.readLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closeCh:
		}
	}()

	return nil
}

type headNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

func (s *HeadSubscriber) readLoop() {
	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
			default:
				s.logger.Warn("head subscription read failed", zap.String("chain", s.chain), zap.Error(err))
			}
			return
		}

		var note headNotification
		if err := jsoniter.Unmarshal(raw, &note); err != nil || note.Method != "eth_subscription" {
			// Subscription confirmations and unrelated frames are skipped.
			continue
		}

		block, err := ParseHexUint(note.Params.Result.Number)
		if err != nil {
			s.logger.Warn("bad head number", zap.String("chain", s.chain), zap.Error(err))
			continue
		}

		atomic.AddUint64(&s.headCount, 1)
		atomic.StoreInt64(&s.lastHeadUnixNano, time.Now().UnixNano())
		if s.onNewHead != nil {
			s.onNewHead(s.chain, block)
		}
	}
}

// HeadStats reports how many heads have been seen and when the last one
// arrived.
type HeadStats struct {
	HeadCount  uint64
	LastHeadAt time.Time
}

func (s *HeadSubscriber) Stats() HeadStats {
	n := atomic.LoadUint64(&s.headCount)
	ns := atomic.LoadInt64(&s.lastHeadUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}
	return HeadStats{HeadCount: n, LastHeadAt: t}
}

func (s *HeadSubscriber) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
	s.closeCh = make(chan struct{})

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	return err
}

func (s *HeadSubscriber) writeJSON(v interface{}) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}
