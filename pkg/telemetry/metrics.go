package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricUpdatesAppliedTotal   = "book_collector_updates_applied_total"
	MetricSnapshotsWrittenTotal = "book_collector_snapshots_written_total"
	MetricPersistErrorsTotal    = "book_collector_persist_errors_total"
	MetricResyncsTotal          = "book_collector_resyncs_total"
	MetricFeedReconnectsTotal   = "book_collector_feed_reconnects_total"
	MetricCollectorsActive      = "book_collector_collectors_active"
	MetricBookAnomalous         = "book_collector_book_anomalous"
	MetricApplyLatency          = "book_collector_apply_latency_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	UpdatesAppliedTotal   metric.Int64Counter
	SnapshotsWrittenTotal metric.Int64Counter
	PersistErrorsTotal    metric.Int64Counter
	ResyncsTotal          metric.Int64Counter
	FeedReconnectsTotal   metric.Int64Counter
	CollectorsActive      metric.Int64ObservableGauge
	BookAnomalous         metric.Int64ObservableGauge
	ApplyLatency          metric.Float64Histogram

	// State for observable gauges
	mu               sync.RWMutex
	activeCollectors int64
	anomalousMap     map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			anomalousMap: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.UpdatesAppliedTotal, err = meter.Int64Counter(MetricUpdatesAppliedTotal, metric.WithDescription("Total order book updates applied"))
	if err != nil {
		return err
	}

	m.SnapshotsWrittenTotal, err = meter.Int64Counter(MetricSnapshotsWrittenTotal, metric.WithDescription("Total snapshots persisted"))
	if err != nil {
		return err
	}

	m.PersistErrorsTotal, err = meter.Int64Counter(MetricPersistErrorsTotal, metric.WithDescription("Total snapshot persistence failures"))
	if err != nil {
		return err
	}

	m.ResyncsTotal, err = meter.Int64Counter(MetricResyncsTotal, metric.WithDescription("Total forced feed resyncs"))
	if err != nil {
		return err
	}

	m.FeedReconnectsTotal, err = meter.Int64Counter(MetricFeedReconnectsTotal, metric.WithDescription("Total feed reconnect attempts"))
	if err != nil {
		return err
	}

	m.ApplyLatency, err = meter.Float64Histogram(MetricApplyLatency, metric.WithDescription("Latency of applying one update to the book"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.CollectorsActive, err = meter.Int64ObservableGauge(MetricCollectorsActive, metric.WithDescription("Number of currently running collectors"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.activeCollectors)
			return nil
		}))
	if err != nil {
		return err
	}

	m.BookAnomalous, err = meter.Int64ObservableGauge(MetricBookAnomalous, metric.WithDescription("Book anomalous state per symbol (1=anomalous, 0=clean)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.anomalousMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetActiveCollectors(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCollectors = count
}

func (m *MetricsHolder) SetBookAnomalous(symbol string, anomalous bool) {
	val := int64(0)
	if anomalous {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalousMap[symbol] = val
}

func (m *MetricsHolder) ForgetSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.anomalousMap, symbol)
}
