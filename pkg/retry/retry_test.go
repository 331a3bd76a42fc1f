package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testPolicy = Policy{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testPolicy, NewBudget(10, time.Minute), nil,
		func() error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	err := Do(context.Background(), testPolicy, NewBudget(10, time.Minute),
		func(err error) bool { return errors.Is(err, permanent) },
		func() error {
			attempts++
			return permanent
		})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_StopsWhenBudgetExhausted(t *testing.T) {
	cause := errors.New("still down")
	attempts := 0
	var retries int
	policy := testPolicy
	policy.OnRetry = func(error, time.Duration) { retries++ }

	err := Do(context.Background(), policy, NewBudget(3, time.Minute), nil,
		func() error {
			attempts++
			return cause
		})
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected the last cause to be wrapped, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if retries != 2 {
		t.Errorf("expected OnRetry before each backoff, got %d calls", retries)
	}
}

func TestDo_SharedBudgetSpansCalls(t *testing.T) {
	budget := NewBudget(2, time.Minute)
	fail := func() error { return errors.New("down") }

	if err := Do(context.Background(), testPolicy, budget, nil, fail); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected exhaustion on first call, got %v", err)
	}
	// The budget is already spent; the next call must not retry at all
	attempts := 0
	err := Do(context.Background(), testPolicy, budget, nil, func() error {
		attempts++
		return errors.New("down")
	})
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt against a spent budget, got %d", attempts)
	}
}

func TestBudget_ExhaustionAndReset(t *testing.T) {
	b := NewBudget(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if b.Exhausted() {
		t.Error("budget should not be exhausted after 2 of 3 failures")
	}

	b.RecordFailure()
	if !b.Exhausted() {
		t.Error("budget should be exhausted after 3 failures")
	}

	b.Reset()
	if b.Exhausted() {
		t.Error("budget should be clear after reset")
	}
}

func TestBudget_WindowExpiry(t *testing.T) {
	b := NewBudget(2, 20*time.Millisecond)
	b.RecordFailure()
	b.RecordFailure()
	if !b.Exhausted() {
		t.Fatal("budget should be exhausted")
	}

	time.Sleep(30 * time.Millisecond)
	if b.Exhausted() {
		t.Error("failures outside the window should expire")
	}
}

func TestBudget_UnlimitedWhenZero(t *testing.T) {
	b := NewBudget(0, time.Second)
	for i := 0; i < 100; i++ {
		b.RecordFailure()
	}
	if b.Exhausted() {
		t.Error("zero max attempts means unlimited")
	}
}
