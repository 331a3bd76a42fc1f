// Package concurrency wraps alitto/pond behind the pool shape the
// orchestrator needs for parallel collector teardown.
package concurrency

import (
	"time"

	"book_collector/internal/core"

	"github.com/alitto/pond"
)

type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
}

// WorkerPool runs teardown and other background tasks with a bounded
// number of workers.
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger core.ILogger
}

func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("Worker pool panic recovered", "pool", cfg.Name, "panic", p)
		}),
	)

	return &WorkerPool{
		pool:   pool,
		config: cfg,
		logger: logger.WithField("component", "worker_pool").WithField("pool", cfg.Name),
	}
}

// Submit queues a task, blocking when the pool is at capacity
func (wp *WorkerPool) Submit(task func()) {
	wp.pool.Submit(task)
}

// Group returns a task group acting as a barrier: submit the stop tasks
// of one reconcile cycle, then Wait for all of them so a slow teardown
// cannot leak into the next cycle.
func (wp *WorkerPool) Group() *pond.TaskGroup {
	return wp.pool.Group()
}

// Stop waits for queued tasks and releases the workers
func (wp *WorkerPool) Stop() {
	stats := wp.Stats()
	wp.pool.StopAndWait()
	wp.logger.Info("Worker pool stopped",
		"submitted", stats.SubmittedTasks, "failed", stats.FailedTasks)
}

// PoolStats is a point-in-time view of pool activity
type PoolStats struct {
	RunningWorkers  int
	IdleWorkers     int
	SubmittedTasks  uint64
	WaitingTasks    uint64
	SuccessfulTasks uint64
	FailedTasks     uint64
}

func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		RunningWorkers:  wp.pool.RunningWorkers(),
		IdleWorkers:     wp.pool.IdleWorkers(),
		SubmittedTasks:  wp.pool.SubmittedTasks(),
		WaitingTasks:    wp.pool.WaitingTasks(),
		SuccessfulTasks: wp.pool.SuccessfulTasks(),
		FailedTasks:     wp.pool.FailedTasks(),
	}
}
