package bitkub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"book_collector/internal/core"
	"book_collector/internal/market"
	apperrors "book_collector/pkg/errors"
	"book_collector/pkg/logging"
)

func newTestFeed(t *testing.T, handler http.HandlerFunc) (*Feed, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	logger, _ := logging.NewZapLogger("DEBUG")
	feed := NewFeedWithBaseURL(server.URL, logger)
	feed.SetPollInterval(50 * time.Millisecond)
	return feed, server.Close
}

func TestFeed_ResyncParsesDepth(t *testing.T) {
	var lastSym atomic.Value
	feed, cleanup := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		lastSym.Store(r.URL.Query().Get("sym"))
		w.Write([]byte(`{"bids":[[100.0,5.0],[99.5,2.0]],"asks":[[101.0,3.0]]}`))
	})
	defer cleanup()

	stream, err := feed.OpenBook(context.Background(), market.Ticker{Base: "BTC", Quote: "THB"})
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	defer stream.Close()

	depth, err := stream.Resync(context.Background())
	if err != nil {
		t.Fatalf("Resync failed: %v", err)
	}
	if len(depth.Bids) != 2 || len(depth.Asks) != 1 {
		t.Errorf("Unexpected depth sizes: %d bids, %d asks", len(depth.Bids), len(depth.Asks))
	}
	if depth.Symbol != "BTC_THB" {
		t.Errorf("Expected BTC_THB, got %s", depth.Symbol)
	}
	// Bitkub wants the quote currency first
	if got := lastSym.Load(); got != "THB_BTC" {
		t.Errorf("Expected sym=THB_BTC, got %v", got)
	}
}

func TestFeed_PollEmitsDepthEvents(t *testing.T) {
	feed, cleanup := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[[100.0,5.0]],"asks":[[101.0,3.0]]}`))
	})
	defer cleanup()

	stream, err := feed.OpenBook(context.Background(), market.Ticker{Base: "BTC", Quote: "THB"})
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	defer stream.Close()

	var first, second core.FeedEvent
	select {
	case first = <-stream.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for first poll")
	}
	select {
	case second = <-stream.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for second poll")
	}

	if first.Depth == nil || second.Depth == nil {
		t.Fatalf("Expected depth events, got %+v / %+v", first, second)
	}
	// Poll time provides the ordering when the API carries no sequence
	if second.Depth.Sequence < first.Depth.Sequence {
		t.Errorf("Sequences must not regress: %d then %d", first.Depth.Sequence, second.Depth.Sequence)
	}
}

func TestFeed_InvalidSymbol(t *testing.T) {
	feed, cleanup := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":11,"result":null}`))
	})
	defer cleanup()

	stream, err := feed.OpenBook(context.Background(), market.Ticker{Base: "NOPE", Quote: "THB"})
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	defer stream.Close()

	_, err = stream.Resync(context.Background())
	if err == nil {
		t.Fatal("Expected an error for an unknown symbol")
	}
	if !errors.Is(err, apperrors.ErrInvalidSymbol) {
		t.Errorf("Expected ErrInvalidSymbol, got %v", err)
	}
}

func TestFeed_PollErrorsAreReported(t *testing.T) {
	feed, cleanup := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})
	defer cleanup()

	stream, err := feed.OpenBook(context.Background(), market.Ticker{Base: "BTC", Quote: "THB"})
	if err != nil {
		t.Fatalf("OpenBook failed: %v", err)
	}
	defer stream.Close()

	select {
	case ev := <-stream.Events():
		if ev.Err == nil {
			t.Fatalf("Expected an error event, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for error event")
	}
}
