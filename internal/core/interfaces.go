// Package core defines the interfaces shared across the collector service
package core

import (
	"context"

	"book_collector/internal/book"
	"book_collector/internal/market"
)

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IHealthMonitor aggregates per-component health checks
type IHealthMonitor interface {
	Register(component string, check func() error)
	Deregister(component string)
	GetStatus() map[string]string
	IsHealthy() bool
}

// INotifier delivers out-of-band operator notifications such as collector
// failures. Implementations must be safe for concurrent use.
type INotifier interface {
	Notify(ctx context.Context, title, message string, fields map[string]string)
}

// FeedEvent is one message from a book stream. Exactly one of Depth,
// Update or Err is set: Depth replaces the whole book, Update changes
// one level, Err reports a feed-integrity problem the consumer must
// resolve with a resync.
type FeedEvent struct {
	Depth  *book.Depth
	Update *book.Update
	Err    error
}

// IBookStream is a live order book subscription for a single symbol
type IBookStream interface {
	// Events returns the stream channel. It is closed after Close.
	Events() <-chan FeedEvent
	// Resync fetches a full depth image to rebase the book from
	Resync(ctx context.Context) (*book.Depth, error)
	// Close tears the subscription down and releases its resources
	Close() error
}

// IFeed produces book streams for one exchange
type IFeed interface {
	Name() string
	OpenBook(ctx context.Context, ticker market.Ticker) (IBookStream, error)
}
