package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Policy defines the backoff between retry attempts
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnRetry, if set, is called before each backoff sleep
	OnRetry func(err error, backoff time.Duration)
}

// ErrBudgetExhausted marks a retry loop stopped by its budget. The
// triggering cause is wrapped alongside it.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// IsPermanentFunc reports errors that must not be retried
type IsPermanentFunc func(error) bool

// Do runs fn until it succeeds, returns a permanent error, exhausts the
// budget, or the context ends. Every failure is charged to the budget.
func Do(ctx context.Context, policy Policy, budget *Budget, isPermanent IsPermanentFunc, fn func() error) error {
	backoff := policy.InitialBackoff
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanent != nil && isPermanent(err) {
			return err
		}

		budget.RecordFailure()
		if budget.Exhausted() {
			return fmt.Errorf("%w (%d failures in %s): %w",
				ErrBudgetExhausted, budget.MaxAttempts, budget.Window, err)
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, backoff)
		}

		// Jittered backoff: backoff + random(0, 50% of backoff)
		jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		backoff = minDuration(backoff*2, policy.MaxBackoff)
	}
}

// Budget bounds retry attempts within a sliding window. Failures recorded
// outside the window expire; a budget is exhausted when MaxAttempts
// failures land inside one Window.
type Budget struct {
	MaxAttempts int
	Window      time.Duration

	mu       sync.Mutex
	failures []time.Time
}

// NewBudget creates a retry budget. MaxAttempts <= 0 means unlimited.
func NewBudget(maxAttempts int, window time.Duration) *Budget {
	return &Budget{
		MaxAttempts: maxAttempts,
		Window:      window,
	}
}

// RecordFailure notes a failed attempt at the current time
func (b *Budget) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, time.Now())
	b.prune(time.Now())
}

// Exhausted reports whether the failure count within the window has
// reached the budget
func (b *Budget) Exhausted() bool {
	if b.MaxAttempts <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(time.Now())
	return len(b.failures) >= b.MaxAttempts
}

// Reset clears all recorded failures (call after a successful recovery)
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
}

func (b *Budget) prune(now time.Time) {
	cutoff := now.Add(-b.Window)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
