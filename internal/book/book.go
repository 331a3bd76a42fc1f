package book

import (
	"fmt"
	"time"

	apperrors "book_collector/pkg/errors"

	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the explicit lifecycle state of a Book
type State int

const (
	StateEmpty State = iota
	StatePartial
	StateConsistent
	StateAnomalous
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StatePartial:
		return "PARTIAL"
	case StateConsistent:
		return "CONSISTENT"
	case StateAnomalous:
		return "ANOMALOUS"
	default:
		return "UNKNOWN"
	}
}

// Book holds the authoritative bid/ask state for one symbol. It is owned
// and mutated by exactly one collector goroutine; it is not safe for
// concurrent use.
type Book struct {
	symbol  string
	state   State
	lastSeq int64
	bids    *rbt.Tree // price -> qty, descending
	asks    *rbt.Tree // price -> qty, ascending
}

// New creates an empty Book for a symbol
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		state:  StateEmpty,
		bids:   rbt.NewWith(bidComparator),
		asks:   rbt.NewWith(askComparator),
	}
}

// Symbol returns the symbol this book tracks
func (b *Book) Symbol() string { return b.symbol }

// State returns the current lifecycle state
func (b *Book) State() State { return b.state }

// LastSequence returns the sequence of the last applied update
func (b *Book) LastSequence() int64 { return b.lastSeq }

// Invalidate marks the book anomalous. Callers use it when the feed
// reports a sequence gap the book itself cannot observe.
func (b *Book) Invalidate() {
	b.state = StateAnomalous
}

// Apply applies one incremental update. In the anomalous state every
// apply is rejected until Rebase resets the book. A zero-qty removal of
// an absent level is a tolerated no-op.
func (b *Book) Apply(u Update) error {
	if b.state == StateAnomalous {
		return fmt.Errorf("%s: %w", b.symbol, apperrors.ErrBookAnomalous)
	}

	if u.Sequence != 0 && b.lastSeq != 0 && u.Sequence < b.lastSeq {
		b.state = StateAnomalous
		return fmt.Errorf("%s: sequence %d after %d: %w", b.symbol, u.Sequence, b.lastSeq, apperrors.ErrOutOfSequence)
	}

	tree := b.asks
	if u.Side == SideBid {
		tree = b.bids
	}

	if u.Qty.IsZero() {
		tree.Remove(u.Price)
	} else {
		tree.Put(u.Price, u.Qty)
	}

	if u.Sequence > b.lastSeq {
		b.lastSeq = u.Sequence
	}

	b.recomputeState()
	if b.state == StateAnomalous {
		return fmt.Errorf("%s: %w", b.symbol, apperrors.ErrCrossedBook)
	}
	return nil
}

// Rebase replaces the whole book with a fresh depth image, resetting an
// anomalous book. A crossed depth image leaves the book anomalous and is
// reported as a feed-integrity error.
func (b *Book) Rebase(d *Depth) error {
	b.bids.Clear()
	b.asks.Clear()
	for _, lvl := range d.Bids {
		if !lvl.Qty.IsZero() {
			b.bids.Put(lvl.Price, lvl.Qty)
		}
	}
	for _, lvl := range d.Asks {
		if !lvl.Qty.IsZero() {
			b.asks.Put(lvl.Price, lvl.Qty)
		}
	}
	b.lastSeq = d.Sequence

	b.state = StateEmpty
	b.recomputeState()
	if b.state == StateAnomalous {
		return fmt.Errorf("%s: depth image crossed: %w", b.symbol, apperrors.ErrCrossedBook)
	}
	return nil
}

// Snapshot cuts an immutable point-in-time copy of the book. It never
// mutates state.
func (b *Book) Snapshot(exchange string) *Snapshot {
	s := &Snapshot{
		ID:         uuid.New(),
		Exchange:   exchange,
		Symbol:     b.symbol,
		CapturedAt: time.Now().UTC(),
		Sequence:   b.lastSeq,
		Bids:       make([]Level, 0, b.bids.Size()),
		Asks:       make([]Level, 0, b.asks.Size()),
	}

	bit := b.bids.Iterator()
	for bit.Next() {
		s.Bids = append(s.Bids, Level{
			Price: bit.Key().(decimal.Decimal),
			Qty:   bit.Value().(decimal.Decimal),
		})
	}
	ait := b.asks.Iterator()
	for ait.Next() {
		s.Asks = append(s.Asks, Level{
			Price: ait.Key().(decimal.Decimal),
			Qty:   ait.Value().(decimal.Decimal),
		})
	}
	return s
}

// recomputeState derives the lifecycle state from the side contents. It
// never leaves the anomalous state on its own; only Rebase does.
func (b *Book) recomputeState() {
	bidsEmpty := b.bids.Empty()
	asksEmpty := b.asks.Empty()

	switch {
	case bidsEmpty && asksEmpty:
		b.state = StateEmpty
	case bidsEmpty || asksEmpty:
		b.state = StatePartial
	default:
		bestBid := b.bids.Left().Key.(decimal.Decimal)
		bestAsk := b.asks.Left().Key.(decimal.Decimal)
		if bestBid.GreaterThanOrEqual(bestAsk) {
			b.state = StateAnomalous
		} else {
			b.state = StateConsistent
		}
	}
}

func askComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

func bidComparator(a, b interface{}) int {
	return b.(decimal.Decimal).Cmp(a.(decimal.Decimal))
}
