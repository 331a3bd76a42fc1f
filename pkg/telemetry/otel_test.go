package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestSetupInstallsProvidersAndInstruments(t *testing.T) {
	tel, err := Setup("book_collector_test")
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	if GetTracer("collector") == nil {
		t.Error("Expected a tracer from the global provider")
	}
	if GetMeter("collector") == nil {
		t.Error("Expected a meter from the global provider")
	}

	m := GetGlobalMetrics()
	if m.UpdatesAppliedTotal == nil || m.SnapshotsWrittenTotal == nil || m.ApplyLatency == nil {
		t.Error("Domain instruments not initialized by Setup")
	}

	// Observable gauge state helpers must not race with the callbacks
	m.SetActiveCollectors(2)
	m.SetBookAnomalous("BTC_USDT", true)
	m.ForgetSymbol("BTC_USDT")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
