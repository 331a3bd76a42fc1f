// Package health tracks liveness of the per-symbol collectors
package health

import (
	"sort"
	"sync"

	"book_collector/internal/core"
)

// HealthManager aggregates health checks keyed by component name.
// Collectors register under "collector:<symbol>" and are removed when
// their symbol leaves the config.
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

func NewHealthManager(logger core.ILogger) *HealthManager {
	hm := &HealthManager{
		checks: make(map[string]func() error),
	}
	if logger != nil {
		hm.logger = logger.WithField("component", "health_manager")
	}
	return hm
}

// Register adds or replaces a component's health check
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// Deregister removes a component's health check
func (hm *HealthManager) Deregister(component string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.checks, component)
}

// GetStatus evaluates every registered check and reports its result
func (hm *HealthManager) GetStatus() map[string]string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := make(map[string]string, len(hm.checks))
	for component, check := range hm.checks {
		if err := check(); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// Failing returns the names of the components whose checks currently
// fail, sorted for stable output.
func (hm *HealthManager) Failing() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	var failing []string
	for component, check := range hm.checks {
		if err := check(); err != nil {
			failing = append(failing, component)
		}
	}
	sort.Strings(failing)
	return failing
}

// IsHealthy reports whether every registered component passes its check
func (hm *HealthManager) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	for _, check := range hm.checks {
		if err := check(); err != nil {
			return false
		}
	}
	return true
}
