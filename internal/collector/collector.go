// Package collector supervises the per-symbol collection loops
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"book_collector/internal/book"
	"book_collector/internal/core"
	"book_collector/internal/market"
	"book_collector/internal/persist"
	apperrors "book_collector/pkg/errors"
	"book_collector/pkg/retry"
	"book_collector/pkg/telemetry"
)

// Status is the externally visible lifecycle state of a collector
type Status string

const (
	StatusStarting  Status = "STARTING"
	StatusRunning   Status = "RUNNING"
	StatusResyncing Status = "RESYNCING"
	StatusFailed    Status = "FAILED"
	StatusStopped   Status = "STOPPED"
)

// Options tunes the collection loop
type Options struct {
	SnapshotInterval time.Duration
	ResyncBackoff    retry.Policy
	MaxRetries       int           // feed failures tolerated per RetryWindow
	RetryWindow      time.Duration // sliding window for MaxRetries
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		SnapshotInterval: time.Second,
		ResyncBackoff: retry.Policy{
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		MaxRetries:  5,
		RetryWindow: time.Minute,
	}
}

// Collector owns one symbol end to end: it opens a book stream, applies
// updates to its Book and periodically persists snapshots. It runs until
// cancelled or until its retry budget is exhausted.
type Collector struct {
	exchange string
	ticker   market.Ticker
	feed     core.IFeed
	store    *persist.Store
	opts     Options
	logger   core.ILogger

	book   *book.Book
	budget *retry.Budget

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.RWMutex
	status       Status
	lastErr      error
	persistedSeq int64
}

// New creates a collector for one symbol. Start must be called to run it.
func New(ticker market.Ticker, feed core.IFeed, store *persist.Store, opts Options, logger core.ILogger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		exchange: feed.Name(),
		ticker:   ticker,
		feed:     feed,
		store:    store,
		opts:     opts,
		logger:   logger.WithField("symbol", ticker.String()),
		book:     book.New(ticker.String()),
		budget:   retry.NewBudget(opts.MaxRetries, opts.RetryWindow),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   StatusStarting,
	}
}

// Symbol returns the canonical symbol this collector owns
func (c *Collector) Symbol() string { return c.ticker.String() }

// Start launches the collection loop
func (c *Collector) Start() {
	go c.run()
}

// Stop cancels the loop and waits for it to finish its final flush
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// Done is closed once the loop has fully terminated
func (c *Collector) Done() <-chan struct{} { return c.done }

// Status returns the current lifecycle status
func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err returns the terminal error for a failed collector, nil otherwise
func (c *Collector) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Health reports nil while the collector is alive, an error once it has
// failed. Registered with the health monitor by the orchestrator.
func (c *Collector) Health() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status == StatusFailed {
		return fmt.Errorf("collector %s failed: %w", c.ticker, c.lastErr)
	}
	return nil
}

func (c *Collector) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Collector) fail(err error) {
	c.mu.Lock()
	c.status = StatusFailed
	c.lastErr = err
	c.mu.Unlock()
	c.logger.Error("Collector failed", "error", err)
}

func (c *Collector) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Errorf("collector panicked: %v", r))
		}
	}()

	c.logger.Info("Starting collector", "exchange", c.exchange)

	stream, err := c.feed.OpenBook(c.ctx, c.ticker)
	if err != nil {
		c.fail(fmt.Errorf("open book stream: %w", err))
		return
	}
	defer stream.Close()

	if err := c.resync(stream); err != nil {
		if c.ctx.Err() == nil {
			c.fail(err)
		} else {
			c.setStatus(StatusStopped)
		}
		return
	}

	snapTicker := time.NewTicker(c.opts.SnapshotInterval)
	defer snapTicker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			c.setStatus(StatusStopped)
			c.logger.Info("Collector stopped")
			return

		case <-snapTicker.C:
			c.persistSnapshot()

		case ev, ok := <-stream.Events():
			if !ok {
				if c.ctx.Err() != nil {
					c.flush()
					c.setStatus(StatusStopped)
					return
				}
				c.fail(apperrors.ErrFeedClosed)
				return
			}
			if err := c.handleEvent(ev, stream); err != nil {
				if c.ctx.Err() == nil {
					c.fail(err)
				} else {
					c.setStatus(StatusStopped)
				}
				return
			}
		}
	}
}

// handleEvent applies one feed event, forcing a resync on any anomaly.
// A non-nil return is terminal for the collector.
func (c *Collector) handleEvent(ev core.FeedEvent, stream core.IBookStream) error {
	m := telemetry.GetGlobalMetrics()

	switch {
	case ev.Err != nil:
		c.logger.Warn("Feed error, forcing resync", "error", ev.Err)
		c.book.Invalidate()
		return c.resyncWithBudget(stream, ev.Err)

	case ev.Depth != nil:
		if err := c.book.Rebase(ev.Depth); err != nil {
			c.logger.Warn("Depth image rejected, forcing resync", "error", err)
			return c.resyncWithBudget(stream, err)
		}
		c.noteBookState()

	case ev.Update != nil:
		start := time.Now()
		if err := c.book.Apply(*ev.Update); err != nil {
			c.logger.Warn("Update rejected, forcing resync",
				"sequence", ev.Update.Sequence, "error", err)
			return c.resyncWithBudget(stream, err)
		}
		if m.UpdatesAppliedTotal != nil {
			m.UpdatesAppliedTotal.Add(c.ctx, 1)
			m.ApplyLatency.Record(c.ctx, float64(time.Since(start).Microseconds())/1000.0)
		}
		c.noteBookState()
	}
	return nil
}

// resyncWithBudget charges the triggering failure against the retry
// budget before attempting recovery.
func (c *Collector) resyncWithBudget(stream core.IBookStream, cause error) error {
	if errors.Is(cause, apperrors.ErrInvalidSymbol) {
		return cause
	}
	c.budget.RecordFailure()
	if c.budget.Exhausted() {
		return fmt.Errorf("%w (%d failures in %s): %w",
			retry.ErrBudgetExhausted, c.opts.MaxRetries, c.opts.RetryWindow, cause)
	}
	return c.resync(stream)
}

// resync fetches a fresh depth image and rebases the book, retrying with
// backoff until it succeeds, the budget runs out or the context ends.
func (c *Collector) resync(stream core.IBookStream) error {
	c.setStatus(StatusResyncing)
	m := telemetry.GetGlobalMetrics()
	if m.ResyncsTotal != nil {
		m.ResyncsTotal.Add(c.ctx, 1)
	}

	policy := c.opts.ResyncBackoff
	policy.OnRetry = func(err error, backoff time.Duration) {
		c.logger.Warn("Resync failed, backing off", "backoff", backoff, "error", err)
	}

	err := retry.Do(c.ctx, policy, c.budget, func(err error) bool {
		return errors.Is(err, apperrors.ErrInvalidSymbol) || errors.Is(err, context.Canceled)
	}, func() error {
		return c.attemptResync(stream)
	})
	if err != nil {
		return err
	}

	c.setStatus(StatusRunning)
	c.noteBookState()
	c.logger.Info("Book synced", "sequence", c.book.LastSequence())
	return nil
}

func (c *Collector) attemptResync(stream core.IBookStream) error {
	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()

	depth, err := stream.Resync(ctx)
	if err != nil {
		return err
	}
	return c.book.Rebase(depth)
}

// persistSnapshot writes the current book if it has advanced since the
// last write. Persistence errors are logged and the snapshot skipped.
func (c *Collector) persistSnapshot() {
	if c.book.State() == book.StateEmpty || c.book.State() == book.StateAnomalous {
		return
	}

	c.mu.RLock()
	lastSeq := c.persistedSeq
	c.mu.RUnlock()
	if c.book.LastSequence() == lastSeq {
		return
	}

	snap := c.book.Snapshot(c.exchange)
	m := telemetry.GetGlobalMetrics()
	if err := c.store.Save(snap); err != nil {
		c.logger.Error("Snapshot persistence failed, skipping", "error", err)
		if m.PersistErrorsTotal != nil {
			m.PersistErrorsTotal.Add(context.Background(), 1)
		}
		return
	}
	if m.SnapshotsWrittenTotal != nil {
		m.SnapshotsWrittenTotal.Add(context.Background(), 1)
	}

	c.mu.Lock()
	c.persistedSeq = snap.Sequence
	c.mu.Unlock()
}

// flush writes one final snapshot during shutdown
func (c *Collector) flush() {
	c.persistSnapshot()
}

func (c *Collector) noteBookState() {
	m := telemetry.GetGlobalMetrics()
	m.SetBookAnomalous(c.ticker.String(), c.book.State() == book.StateAnomalous)
}
