// Package mock provides scripted test doubles for the feed boundary
package mock

import (
	"context"
	"sync"
	"time"

	"book_collector/internal/book"
	"book_collector/internal/core"
	"book_collector/internal/market"

	"github.com/shopspring/decimal"
)

// Feed implements core.IFeed with fully scripted behavior
type Feed struct {
	name string

	mu        sync.Mutex
	streams   map[string]*BookStream
	openErr   error
	resyncFn  func(symbol string) (*book.Depth, error)
	openCount int
}

// NewFeed creates a mock feed named like a real exchange
func NewFeed(name string) *Feed {
	return &Feed{
		name:    name,
		streams: make(map[string]*BookStream),
	}
}

func (f *Feed) Name() string { return f.name }

// FailOpenWith makes subsequent OpenBook calls fail
func (f *Feed) FailOpenWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

// SetResyncFunc scripts the Resync behavior for all opened streams
func (f *Feed) SetResyncFunc(fn func(symbol string) (*book.Depth, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncFn = fn
}

// OpenCount returns how many streams were opened
func (f *Feed) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCount
}

// Stream returns the open mock stream for a symbol, if any
func (f *Feed) Stream(symbol string) (*BookStream, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[symbol]
	return s, ok
}

func (f *Feed) OpenBook(ctx context.Context, ticker market.Ticker) (core.IBookStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.openCount++
	if f.openErr != nil {
		return nil, f.openErr
	}

	s := &BookStream{
		symbol:   ticker.String(),
		resyncFn: f.resyncFn,
		events:   make(chan core.FeedEvent, 64),
	}
	f.streams[ticker.String()] = s
	return s, nil
}

// BookStream is a scripted stream; tests push events into it
type BookStream struct {
	symbol   string
	resyncFn func(symbol string) (*book.Depth, error)
	events   chan core.FeedEvent

	mu         sync.Mutex
	resyncs    int
	closed     bool
	closeDelay time.Duration
	closeOnce  sync.Once
}

func (s *BookStream) Events() <-chan core.FeedEvent { return s.events }

func (s *BookStream) Resync(ctx context.Context) (*book.Depth, error) {
	s.mu.Lock()
	s.resyncs++
	fn := s.resyncFn
	s.mu.Unlock()

	if fn != nil {
		return fn(s.symbol)
	}
	return DefaultDepth(s.symbol, 1), nil
}

// SetCloseDelay makes Close block for d, simulating a slow teardown
func (s *BookStream) SetCloseDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeDelay = d
}

func (s *BookStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		delay := s.closeDelay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.events)
	})
	return nil
}

// Resyncs returns how many resyncs were requested
func (s *BookStream) Resyncs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resyncs
}

// Closed reports whether the collector released the stream
func (s *BookStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Push delivers an event to the consumer. Returns false once closed.
func (s *BookStream) Push(ev core.FeedEvent) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	s.events <- ev
	return true
}

// DefaultDepth builds a small consistent depth image
func DefaultDepth(symbol string, seq int64) *book.Depth {
	return &book.Depth{
		Symbol:   symbol,
		Sequence: seq,
		Bids: []book.Level{
			{Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(5)},
		},
		Asks: []book.Level{
			{Price: decimal.NewFromInt(101), Qty: decimal.NewFromInt(3)},
		},
	}
}
