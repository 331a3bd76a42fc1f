// Package binance implements the Binance order book feed
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"book_collector/internal/book"
	"book_collector/internal/core"
	"book_collector/internal/market"
	apperrors "book_collector/pkg/errors"
	"book_collector/pkg/websocket"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const (
	defaultSpotWS = "wss://stream.binance.com:9443/ws"

	depthLimit = 1000
)

// Feed streams incremental depth updates over WebSocket and fetches full
// depth images over REST for resyncs.
type Feed struct {
	wsBase string
	rest   *gobinance.Client
	logger core.ILogger
}

// NewFeed creates a feed against the production Binance endpoints
func NewFeed(logger core.ILogger) *Feed {
	return NewFeedWithEndpoints(defaultSpotWS, "", logger)
}

// NewFeedWithEndpoints creates a feed against custom endpoints. An empty
// restBase keeps the client default. Used by tests.
func NewFeedWithEndpoints(wsBase, restBase string, logger core.ILogger) *Feed {
	rest := gobinance.NewClient("", "")
	if restBase != "" {
		rest.BaseURL = restBase
	}
	return &Feed{
		wsBase: wsBase,
		rest:   rest,
		logger: logger,
	}
}

// Name returns the canonical exchange name
func (f *Feed) Name() string { return "BINANCE" }

// OpenBook subscribes to the diff depth stream for a ticker
func (f *Feed) OpenBook(ctx context.Context, ticker market.Ticker) (core.IBookStream, error) {
	native := strings.ToUpper(ticker.Base + ticker.Quote)
	streamURL := fmt.Sprintf("%s/%s@depth@100ms", f.wsBase, strings.ToLower(native))

	s := &bookStream{
		feed:   f,
		symbol: ticker.String(),
		native: native,
		events: make(chan core.FeedEvent, 256),
		done:   make(chan struct{}),
		logger: f.logger.WithField("symbol", ticker.String()),
	}

	ws := websocket.NewClient(streamURL, s.handleMessage, s.logger)
	ws.SetOnConnected(s.onConnected)
	s.ws = ws
	ws.Start()

	return s, nil
}

// wsDepthEvent is the diff depth stream payload
type wsDepthEvent struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	FirstID   int64      `json:"U"`
	FinalID   int64      `json:"u"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type bookStream struct {
	feed   *Feed
	symbol string
	native string
	ws     *websocket.Client
	logger core.ILogger

	events chan core.FeedEvent
	done   chan struct{}

	mu        sync.Mutex
	lastFinal int64 // final update ID of the last forwarded event; 0 until the first resync

	closeOnce sync.Once
}

func (s *bookStream) Events() <-chan core.FeedEvent { return s.events }

// Resync fetches a full depth image and rearms the stream's sequence
// tracking so buffered stale events are dropped.
func (s *bookStream) Resync(ctx context.Context) (*book.Depth, error) {
	resp, err := s.feed.rest.NewDepthService().Symbol(s.native).Limit(depthLimit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("depth fetch for %s: %w", s.symbol, err)
	}

	depth := &book.Depth{
		Symbol:   s.symbol,
		Sequence: resp.LastUpdateID,
		Time:     time.Now().UTC(),
		Bids:     make([]book.Level, 0, len(resp.Bids)),
		Asks:     make([]book.Level, 0, len(resp.Asks)),
	}
	for _, b := range resp.Bids {
		lvl, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, err
		}
		depth.Bids = append(depth.Bids, lvl)
	}
	for _, a := range resp.Asks {
		lvl, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, err
		}
		depth.Asks = append(depth.Asks, lvl)
	}

	s.mu.Lock()
	s.lastFinal = resp.LastUpdateID
	s.mu.Unlock()

	return depth, nil
}

func (s *bookStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.ws.Stop()
		close(s.events)
	})
	return nil
}

// onConnected fires on every (re)connection. An already-synced stream
// cannot trust its continuity across a new connection, so it unsyncs
// itself and asks the consumer for a fresh resync.
func (s *bookStream) onConnected() {
	s.mu.Lock()
	wasSynced := s.lastFinal != 0
	s.lastFinal = 0
	s.mu.Unlock()

	if wasSynced {
		s.emit(core.FeedEvent{Err: fmt.Errorf("stream reconnected for %s: %w", s.symbol, apperrors.ErrOutOfSequence)})
	}
}

func (s *bookStream) handleMessage(message []byte) {
	var ev wsDepthEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		s.logger.Error("Failed to unmarshal depth update", "error", err)
		return
	}
	if ev.EventType != "depthUpdate" {
		return
	}

	s.mu.Lock()
	last := s.lastFinal
	s.mu.Unlock()

	// Updates before the first resync have nothing to apply against
	if last == 0 {
		return
	}
	// Stale event already covered by the depth image
	if ev.FinalID <= last {
		return
	}
	if ev.FirstID > last+1 {
		s.mu.Lock()
		s.lastFinal = 0
		s.mu.Unlock()
		s.emit(core.FeedEvent{Err: fmt.Errorf("update gap for %s: have %d, next starts at %d: %w",
			s.symbol, last, ev.FirstID, apperrors.ErrOutOfSequence)})
		return
	}

	ts := time.UnixMilli(ev.EventTime).UTC()
	if s.forwardLevels(ev.Bids, book.SideBid, ev.FinalID, ts) && s.forwardLevels(ev.Asks, book.SideAsk, ev.FinalID, ts) {
		s.mu.Lock()
		s.lastFinal = ev.FinalID
		s.mu.Unlock()
	}
}

func (s *bookStream) forwardLevels(levels [][]string, side book.Side, seq int64, ts time.Time) bool {
	for _, raw := range levels {
		if len(raw) != 2 {
			s.emit(core.FeedEvent{Err: fmt.Errorf("malformed depth level for %s: %v", s.symbol, raw)})
			return false
		}
		lvl, err := parseLevel(raw[0], raw[1])
		if err != nil {
			s.emit(core.FeedEvent{Err: err})
			return false
		}
		ok := s.emit(core.FeedEvent{Update: &book.Update{
			Symbol:   s.symbol,
			Sequence: seq,
			Time:     ts,
			Side:     side,
			Price:    lvl.Price,
			Qty:      lvl.Qty,
		}})
		if !ok {
			return false
		}
	}
	return true
}

func (s *bookStream) emit(ev core.FeedEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func parseLevel(price, qty string) (book.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return book.Level{}, fmt.Errorf("bad price %q: %w", price, err)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return book.Level{}, fmt.Errorf("bad qty %q: %w", qty, err)
	}
	return book.Level{Price: p, Qty: q}, nil
}
