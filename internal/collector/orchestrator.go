package collector

import (
	"context"
	"sync"

	"book_collector/internal/config"
	"book_collector/internal/core"
	"book_collector/internal/market"
	"book_collector/internal/persist"
	"book_collector/pkg/concurrency"
	"book_collector/pkg/telemetry"
)

// Orchestrator owns the collector set and reconciles it against each
// config emitted by the watcher. Config events are applied strictly one
// at a time; collectors never reference the orchestrator back.
type Orchestrator struct {
	feed     core.IFeed
	store    *persist.Store
	opts     Options
	pool     *concurrency.WorkerPool
	health   core.IHealthMonitor
	notifier core.INotifier
	logger   core.ILogger

	mu         sync.RWMutex
	collectors map[string]*Collector
}

// NewOrchestrator creates an orchestrator. The health monitor and
// notifier are optional.
func NewOrchestrator(feed core.IFeed, store *persist.Store, opts Options, pool *concurrency.WorkerPool,
	health core.IHealthMonitor, notifier core.INotifier, logger core.ILogger) *Orchestrator {
	return &Orchestrator{
		feed:       feed,
		store:      store,
		opts:       opts,
		pool:       pool,
		health:     health,
		notifier:   notifier,
		logger:     logger.WithField("component", "orchestrator"),
		collectors: make(map[string]*Collector),
	}
}

// Run consumes config events until the context ends, then tears every
// collector down and returns.
func (o *Orchestrator) Run(ctx context.Context, events <-chan *config.Config) error {
	for {
		select {
		case <-ctx.Done():
			o.Shutdown()
			return nil
		case cfg, ok := <-events:
			if !ok {
				o.Shutdown()
				return nil
			}
			o.Reconcile(ctx, cfg)
		}
	}
}

// Reconcile diffs the desired symbol set against the running one: new
// symbols are started, removed symbols are stopped, unchanged healthy
// collectors keep running untouched. A collector that failed since the
// last cycle is replaced if its symbol is still desired.
func (o *Orchestrator) Reconcile(ctx context.Context, cfg *config.Config) {
	desired := cfg.TickerSet()

	o.mu.Lock()
	toStop := make(map[string]*Collector)
	toStart := make(map[string]market.Ticker)

	for sym, c := range o.collectors {
		if _, keep := desired[sym]; !keep {
			toStop[sym] = c
			delete(o.collectors, sym)
		} else if c.Status() == StatusFailed {
			toStop[sym] = c
			delete(o.collectors, sym)
			toStart[sym] = desired[sym]
		}
	}
	for sym, t := range desired {
		if _, running := o.collectors[sym]; !running {
			toStart[sym] = t
		}
	}
	o.mu.Unlock()

	if len(toStop) == 0 && len(toStart) == 0 {
		o.logger.Debug("Reconcile: no changes", "symbols", cfg.Symbols())
		return
	}
	o.logger.Info("Reconciling collectors",
		"desired", len(desired), "starting", len(toStart), "stopping", len(toStop))

	o.stopAll(toStop)

	for sym, ticker := range toStart {
		o.startCollector(ctx, sym, ticker)
	}

	o.noteActive()
}

// Shutdown stops every collector in parallel and waits for all of them
// to finish their final flush.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	stopping := o.collectors
	o.collectors = make(map[string]*Collector)
	o.mu.Unlock()

	if len(stopping) > 0 {
		o.logger.Info("Shutting down collectors", "count", len(stopping))
		o.stopAll(stopping)
	}
	o.noteActive()
}

// Symbols returns the currently managed symbols
func (o *Orchestrator) Symbols() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	symbols := make([]string, 0, len(o.collectors))
	for s := range o.collectors {
		symbols = append(symbols, s)
	}
	return symbols
}

// Collector returns the live collector for a symbol, if any
func (o *Orchestrator) Collector(symbol string) (*Collector, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.collectors[symbol]
	return c, ok
}

// stopAll tears a set of collectors down in parallel and waits for the
// whole group before returning.
func (o *Orchestrator) stopAll(stopping map[string]*Collector) {
	group := o.pool.Group()
	for sym, c := range stopping {
		sym, c := sym, c
		group.Submit(func() {
			c.Stop()
			o.logger.Info("Collector torn down", "symbol", sym, "status", c.Status())
		})
	}
	group.Wait()

	m := telemetry.GetGlobalMetrics()
	for sym := range stopping {
		if o.health != nil {
			o.health.Deregister("collector:" + sym)
		}
		m.ForgetSymbol(sym)
	}
}

func (o *Orchestrator) startCollector(ctx context.Context, sym string, ticker market.Ticker) {
	c := New(ticker, o.feed, o.store, o.opts, o.logger)

	o.mu.Lock()
	o.collectors[sym] = c
	o.mu.Unlock()

	if o.health != nil {
		o.health.Register("collector:"+sym, c.Health)
	}

	c.Start()
	o.logger.Info("Collector started", "symbol", sym)

	// Surface terminal failures; the symbol stays registered so the
	// next config cycle replaces it.
	go func() {
		<-c.Done()
		if c.Status() != StatusFailed {
			return
		}
		err := c.Err()
		o.logger.Error("Collector terminated with failure", "symbol", sym, "error", err)
		if o.notifier != nil {
			o.notifier.Notify(ctx, "Collector failed", err.Error(), map[string]string{
				"symbol":   sym,
				"exchange": o.feed.Name(),
			})
		}
	}()
}

func (o *Orchestrator) noteActive() {
	o.mu.RLock()
	n := int64(len(o.collectors))
	o.mu.RUnlock()
	telemetry.GetGlobalMetrics().SetActiveCollectors(n)
}
