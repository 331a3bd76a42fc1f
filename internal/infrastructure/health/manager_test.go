package health

import (
	"fmt"
	"testing"
)

func TestHealthManager_Aggregation(t *testing.T) {
	hm := NewHealthManager(nil)

	// Initial state: Healthy (no checks)
	if !hm.IsHealthy() {
		t.Error("Empty health manager should be healthy")
	}

	// Add healthy check
	hm.Register("comp1", func() error { return nil })
	if !hm.IsHealthy() {
		t.Error("Healthy component should not fail manager")
	}

	// Add unhealthy check
	hm.Register("comp2", func() error { return fmt.Errorf("failed") })
	if hm.IsHealthy() {
		t.Error("Unhealthy component should fail manager")
	}

	status := hm.GetStatus()
	if status["comp1"] != "Healthy" {
		t.Errorf("Expected Healthy, got %s", status["comp1"])
	}
	if status["comp2"] != "Unhealthy: failed" {
		t.Errorf("Expected Unhealthy, got %s", status["comp2"])
	}
}

func TestHealthManager_Failing(t *testing.T) {
	hm := NewHealthManager(nil)

	hm.Register("collector:ETH_USDT", func() error { return fmt.Errorf("stalled") })
	hm.Register("collector:BTC_USDT", func() error { return fmt.Errorf("stalled") })
	hm.Register("collector:SOL_USDT", func() error { return nil })

	failing := hm.Failing()
	if len(failing) != 2 {
		t.Fatalf("Expected 2 failing components, got %v", failing)
	}
	if failing[0] != "collector:BTC_USDT" || failing[1] != "collector:ETH_USDT" {
		t.Errorf("Expected sorted failing list, got %v", failing)
	}
}

func TestHealthManager_Deregister(t *testing.T) {
	hm := NewHealthManager(nil)

	hm.Register("collector:BTC_USDT", func() error { return fmt.Errorf("failed") })
	if hm.IsHealthy() {
		t.Error("Failed collector should fail manager")
	}

	hm.Deregister("collector:BTC_USDT")
	if !hm.IsHealthy() {
		t.Error("Manager should recover once the failed check is removed")
	}
	if len(hm.GetStatus()) != 0 {
		t.Errorf("Expected empty status, got %v", hm.GetStatus())
	}
}
