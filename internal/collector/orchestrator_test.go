package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"book_collector/internal/book"
	"book_collector/internal/config"
	"book_collector/internal/core"
	"book_collector/internal/mock"
	"book_collector/internal/persist"
	"book_collector/pkg/concurrency"
	apperrors "book_collector/pkg/errors"
	"book_collector/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(ctx context.Context, title, message string, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fields["symbol"])
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func newTestOrchestrator(t *testing.T, feed *mock.Feed, notifier *recordingNotifier) *Orchestrator {
	t.Helper()
	logger, _ := logging.NewZapLogger("DEBUG")
	store := persist.NewStore(t.TempDir(), logger)
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "teardown",
		MaxWorkers: 4,
	}, logger)
	t.Cleanup(pool.Stop)

	var n core.INotifier
	if notifier != nil {
		n = notifier
	}
	return NewOrchestrator(feed, store, testOptions(), pool, nil, n, logger)
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestOrchestrator_ReconcileDiff(t *testing.T) {
	feed := mock.NewFeed("BINANCE")
	o := newTestOrchestrator(t, feed, nil)
	defer o.Shutdown()

	ctx := context.Background()

	o.Reconcile(ctx, &config.Config{CEX: "BINANCE", Tickers: []string{"BTC_USDT", "ETH_USDT"}})
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, sorted(o.Symbols()))

	kept, ok := o.Collector("ETH_USDT")
	require.True(t, ok)

	// BTC removed, SOL added, ETH untouched
	o.Reconcile(ctx, &config.Config{CEX: "BINANCE", Tickers: []string{"ETH_USDT", "SOL_USDT"}})
	assert.Equal(t, []string{"ETH_USDT", "SOL_USDT"}, sorted(o.Symbols()))

	after, ok := o.Collector("ETH_USDT")
	require.True(t, ok)
	assert.Same(t, kept, after, "unchanged symbol must keep its collector")

	btcStream, ok := feed.Stream("BTC_USDT")
	require.True(t, ok)
	assert.True(t, btcStream.Closed(), "removed symbol must release its feed")
}

func TestOrchestrator_ReconcileIsIdempotent(t *testing.T) {
	feed := mock.NewFeed("BINANCE")
	o := newTestOrchestrator(t, feed, nil)
	defer o.Shutdown()

	cfg := &config.Config{CEX: "BINANCE", Tickers: []string{"BTC_USDT"}}
	o.Reconcile(context.Background(), cfg)
	before, _ := o.Collector("BTC_USDT")

	o.Reconcile(context.Background(), cfg)
	after, _ := o.Collector("BTC_USDT")

	assert.Same(t, before, after)
	assert.Equal(t, 1, feed.OpenCount())
}

func TestOrchestrator_ShutdownStopsEverything(t *testing.T) {
	feed := mock.NewFeed("BINANCE")
	o := newTestOrchestrator(t, feed, nil)

	o.Reconcile(context.Background(), &config.Config{CEX: "BINANCE", Tickers: []string{"BTC_USDT", "ETH_USDT", "SOL_USDT"}})
	require.Len(t, o.Symbols(), 3)

	o.Shutdown()
	assert.Empty(t, o.Symbols())

	for _, sym := range []string{"BTC_USDT", "ETH_USDT", "SOL_USDT"} {
		stream, ok := feed.Stream(sym)
		require.True(t, ok, sym)
		assert.True(t, stream.Closed(), sym)
	}
}

func TestOrchestrator_FailedCollectorReplacedNextCycle(t *testing.T) {
	feed := mock.NewFeed("BINANCE")
	notifier := &recordingNotifier{}
	o := newTestOrchestrator(t, feed, notifier)
	defer o.Shutdown()

	// Every resync fails until the budget runs out
	feed.SetResyncFunc(func(symbol string) (*book.Depth, error) {
		return nil, fmt.Errorf("down: %w", apperrors.ErrNetwork)
	})

	cfg := &config.Config{CEX: "BINANCE", Tickers: []string{"BTC_USDT"}}
	o.Reconcile(context.Background(), cfg)

	c, ok := o.Collector("BTC_USDT")
	require.True(t, ok)
	require.Eventually(t, func() bool { return c.Status() == StatusFailed },
		3*time.Second, 10*time.Millisecond)

	// Still registered until the next config cycle
	_, ok = o.Collector("BTC_USDT")
	assert.True(t, ok)
	require.Eventually(t, func() bool { return len(notifier.notified()) > 0 },
		3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"BTC_USDT"}, notifier.notified())

	// The feed recovers; the next cycle replaces the failed collector
	feed.SetResyncFunc(nil)
	o.Reconcile(context.Background(), cfg)

	replaced, ok := o.Collector("BTC_USDT")
	require.True(t, ok)
	assert.NotSame(t, c, replaced)
	require.Eventually(t, func() bool { return replaced.Status() == StatusRunning },
		3*time.Second, 10*time.Millisecond)
}

func TestOrchestrator_SlowTeardownDoesNotBlockOthers(t *testing.T) {
	feed := mock.NewFeed("BINANCE")
	o := newTestOrchestrator(t, feed, nil)

	ctx := context.Background()
	o.Reconcile(ctx, &config.Config{CEX: "BINANCE", Tickers: []string{"BTC_USDT", "ETH_USDT"}})

	slowStream, ok := feed.Stream("BTC_USDT")
	require.True(t, ok)
	slowStream.SetCloseDelay(300 * time.Millisecond)

	slow, ok := o.Collector("BTC_USDT")
	require.True(t, ok)
	fast, ok := o.Collector("ETH_USDT")
	require.True(t, ok)

	var fastDone, slowDone time.Time
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-fast.Done()
		fastDone = time.Now()
	}()
	go func() {
		defer wg.Done()
		<-slow.Done()
		slowDone = time.Now()
	}()

	start := time.Now()
	o.Reconcile(ctx, &config.Config{CEX: "BINANCE", Tickers: []string{}})
	elapsed := time.Since(start)
	wg.Wait()

	assert.True(t, slowDone.Sub(fastDone) >= 200*time.Millisecond,
		"fast collector finished %s before the slow one, expected >= 200ms", slowDone.Sub(fastDone))
	assert.Less(t, elapsed, 600*time.Millisecond,
		"teardowns must run in parallel, reconcile took %s", elapsed)
	assert.Empty(t, o.Symbols())
}

func TestOrchestrator_RunAppliesConfigEvents(t *testing.T) {
	feed := mock.NewFeed("BINANCE")
	o := newTestOrchestrator(t, feed, nil)

	events := make(chan *config.Config, 2)
	events <- &config.Config{CEX: "BINANCE", Tickers: []string{"BTC_USDT"}}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		o.Run(ctx, events)
	}()

	require.Eventually(t, func() bool { return len(o.Symbols()) == 1 },
		3*time.Second, 10*time.Millisecond)

	events <- &config.Config{CEX: "BINANCE", Tickers: []string{"ETH_USDT"}}
	require.Eventually(t, func() bool {
		syms := o.Symbols()
		return len(syms) == 1 && syms[0] == "ETH_USDT"
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.Empty(t, o.Symbols())
}
