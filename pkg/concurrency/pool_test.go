package concurrency

import (
	"sync/atomic"
	"testing"
	"time"

	"book_collector/pkg/logging"
)

func newTestPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: workers}, logger)
}

func TestWorkerPool_GroupBarrier(t *testing.T) {
	wp := newTestPool(t, 4)
	defer wp.Stop()

	var done atomic.Int32
	group := wp.Group()
	for i := 0; i < 8; i++ {
		group.Submit(func() {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
		})
	}
	group.Wait()

	if got := done.Load(); got != 8 {
		t.Errorf("Expected 8 completed tasks after Wait, got %d", got)
	}
}

func TestWorkerPool_SlowTaskDoesNotBlockOthers(t *testing.T) {
	wp := newTestPool(t, 4)
	defer wp.Stop()

	slowReleased := make(chan struct{})
	fastDone := make(chan struct{})

	wp.Submit(func() { <-slowReleased })
	wp.Submit(func() { close(fastDone) })

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("Fast task blocked behind slow task")
	}
	close(slowReleased)
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	wp := newTestPool(t, 2)

	wp.Submit(func() { panic("boom") })

	done := make(chan struct{})
	wp.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pool stopped working after a panic")
	}
	wp.Stop()
}
