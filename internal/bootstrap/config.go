package bootstrap

import (
	"fmt"
	"os"

	"book_collector/internal/config"
)

// Settings is an alias for the project's service settings struct
type Settings = config.Settings

// LoadSettings loads the service settings, falling back to defaults when
// no path is given.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return config.DefaultSettings(), nil
	}
	return config.LoadSettings(path)
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(settings *Settings) error {
	if _, err := os.Stat(settings.Collector.ConfigPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("runtime config file not found: %s", settings.Collector.ConfigPath)
		}
		return err
	}

	// The data dir must be creatable before any collector starts
	if err := os.MkdirAll(settings.Collector.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	return nil
}
