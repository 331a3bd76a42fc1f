// Package bitkub implements the Bitkub order book feed
package bitkub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"book_collector/internal/book"
	"book_collector/internal/core"
	"book_collector/internal/market"
	apperrors "book_collector/pkg/errors"
	"book_collector/pkg/httpclient"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://api.bitkub.com"
	depthPath      = "/api/market/depth"
	depthLimit     = 100

	// Bitkub has no incremental stream; the public depth endpoint is
	// polled at a fixed cadence.
	defaultPollInterval = 2 * time.Second

	requestTimeout = 10 * time.Second
	requestsPerSec = 2.0
)

// Feed polls the public REST depth endpoint and emits full book images
type Feed struct {
	client       *httpclient.Client
	pollInterval time.Duration
	logger       core.ILogger
}

// NewFeed creates a feed against the production Bitkub API
func NewFeed(logger core.ILogger) *Feed {
	return NewFeedWithBaseURL(defaultBaseURL, logger)
}

// NewFeedWithBaseURL creates a feed against a custom API endpoint. Used
// by tests.
func NewFeedWithBaseURL(baseURL string, logger core.ILogger) *Feed {
	return &Feed{
		client:       httpclient.NewClient(baseURL, requestTimeout, requestsPerSec),
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

// SetPollInterval overrides the poll cadence for subsequently opened books
func (f *Feed) SetPollInterval(interval time.Duration) {
	f.pollInterval = interval
}

// Name returns the canonical exchange name
func (f *Feed) Name() string { return "BITKUB" }

// OpenBook starts polling the depth endpoint for a ticker
func (f *Feed) OpenBook(ctx context.Context, ticker market.Ticker) (core.IBookStream, error) {
	s := &bookStream{
		feed:   f,
		symbol: ticker.String(),
		// Bitkub symbols are quote-first, e.g. THB_BTC
		native: strings.ToUpper(ticker.Quote + "_" + ticker.Base),
		events: make(chan core.FeedEvent, 16),
		logger: f.logger.WithField("symbol", ticker.String()),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.pollLoop()

	return s, nil
}

type bookStream struct {
	feed   *Feed
	symbol string
	native string
	logger core.ILogger

	events chan core.FeedEvent
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

func (s *bookStream) Events() <-chan core.FeedEvent { return s.events }

// Resync fetches a single depth image outside the poll cadence
func (s *bookStream) Resync(ctx context.Context) (*book.Depth, error) {
	return s.fetchDepth(ctx)
}

func (s *bookStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		close(s.events)
	})
	return nil
}

func (s *bookStream) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.feed.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			depth, err := s.fetchDepth(s.ctx)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.emit(core.FeedEvent{Err: err})
				continue
			}
			s.emit(core.FeedEvent{Depth: depth})
		}
	}
}

func (s *bookStream) emit(ev core.FeedEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// depthResponse is the /api/market/depth payload. A null result with a
// non-zero error code means the symbol does not exist.
type depthResponse struct {
	Error  int             `json:"error"`
	Result json.RawMessage `json:"result"`
}

type depthResult struct {
	Bids [][]decimal.Decimal `json:"bids"`
	Asks [][]decimal.Decimal `json:"asks"`
}

func (s *bookStream) fetchDepth(ctx context.Context) (*book.Depth, error) {
	body, err := s.feed.client.Get(ctx, depthPath, map[string]string{
		"sym": s.native,
		"lmt": strconv.Itoa(depthLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("%s depth poll: %w", s.symbol, err)
	}

	// Depth comes back as a bare {"bids":...,"asks":...} object; an
	// unknown symbol comes back wrapped as {"error":N,"result":null}.
	payload := body
	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Result != nil {
		if bytes.Equal(bytes.TrimSpace(resp.Result), []byte("null")) {
			return nil, fmt.Errorf("%s (%s): %w", s.symbol, s.native, apperrors.ErrInvalidSymbol)
		}
		payload = resp.Result
	}

	var result depthResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("%s depth decode: %w", s.symbol, err)
	}

	now := time.Now().UTC()
	depth := &book.Depth{
		Symbol: s.symbol,
		// No server sequence on this endpoint; the poll time orders images
		Sequence: now.UnixMilli(),
		Time:     now,
		Bids:     make([]book.Level, 0, len(result.Bids)),
		Asks:     make([]book.Level, 0, len(result.Asks)),
	}
	for _, raw := range result.Bids {
		lvl, err := toLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("%s bid level: %w", s.symbol, err)
		}
		depth.Bids = append(depth.Bids, lvl)
	}
	for _, raw := range result.Asks {
		lvl, err := toLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("%s ask level: %w", s.symbol, err)
		}
		depth.Asks = append(depth.Asks, lvl)
	}
	return depth, nil
}

func toLevel(raw []decimal.Decimal) (book.Level, error) {
	if len(raw) < 2 {
		return book.Level{}, fmt.Errorf("malformed level: %v", raw)
	}
	return book.Level{Price: raw[0], Qty: raw[1]}, nil
}
