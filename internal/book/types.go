// Package book maintains per-symbol order book state from a live feed
package book

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side identifies the order book side of an update or level
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Update is one incremental change to a single price level. Qty of zero
// removes the level. Sequence carries the feed's update identifier; zero
// means the feed does not sequence its deltas.
type Update struct {
	Symbol   string
	Sequence int64
	Time     time.Time
	Side     Side
	Price    decimal.Decimal
	Qty      decimal.Decimal
}

// Level is a price level within a snapshot or depth refresh
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Depth is a full order book image from a feed, used to (re)base the book
// after a resync or as the poll result of refresh-style feeds.
type Depth struct {
	Symbol   string
	Sequence int64
	Time     time.Time
	Bids     []Level
	Asks     []Level
}

// Snapshot is an immutable point-in-time copy of the book. Bids are
// sorted descending, asks ascending.
type Snapshot struct {
	ID         uuid.UUID `json:"id"`
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	CapturedAt time.Time `json:"captured_at"`
	Sequence   int64     `json:"sequence"`
	Bids       []Level   `json:"bids"`
	Asks       []Level   `json:"asks"`
}

// BestBid returns the highest bid level, or false when the side is empty
func (s *Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask level, or false when the side is empty
func (s *Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}
