package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the static service configuration loaded once at startup.
// The symbol list lives in the watched Config instead; see watcher.go.
type Settings struct {
	System    SystemSettings    `yaml:"system"`
	Collector CollectorSettings `yaml:"collector"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	Alert     AlertSettings     `yaml:"alert"`
}

// SystemSettings contains system settings
type SystemSettings struct {
	LogLevel string `yaml:"log_level"`
}

// CollectorSettings contains the collection parameters
type CollectorSettings struct {
	ConfigPath         string `yaml:"config_path"`          // watched runtime config file
	DataDir            string `yaml:"data_dir"`             // snapshot output root
	SnapshotIntervalMs int    `yaml:"snapshot_interval_ms"` // persistence cadence per symbol
	MaxRetries         int    `yaml:"max_retries"`          // resync attempts before a collector fails
	RetryWindowSec     int    `yaml:"retry_window_seconds"` // sliding window for the retry budget
	DebounceMs         int    `yaml:"debounce_ms"`          // config file event debounce
}

// TelemetrySettings contains telemetry settings
type TelemetrySettings struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertSettings contains operator notification settings
type AlertSettings struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// LoadSettings loads settings from a YAML file with environment variable
// expansion, applying defaults for anything unset.
func LoadSettings(filename string) (*Settings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var settings Settings
	if err := yaml.Unmarshal([]byte(expanded), &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	settings.applyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return &settings, nil
}

// DefaultSettings returns settings with every default applied
func DefaultSettings() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.System.LogLevel == "" {
		s.System.LogLevel = "INFO"
	}
	if s.Collector.ConfigPath == "" {
		s.Collector.ConfigPath = "config.json"
	}
	if s.Collector.DataDir == "" {
		s.Collector.DataDir = "data"
	}
	if s.Collector.SnapshotIntervalMs == 0 {
		s.Collector.SnapshotIntervalMs = 1000
	}
	if s.Collector.MaxRetries == 0 {
		s.Collector.MaxRetries = 5
	}
	if s.Collector.RetryWindowSec == 0 {
		s.Collector.RetryWindowSec = 60
	}
	if s.Collector.DebounceMs == 0 {
		s.Collector.DebounceMs = 500
	}
	if s.Telemetry.MetricsPort == 0 {
		s.Telemetry.MetricsPort = 9090
	}
}

// Validate performs validation of the settings
func (s *Settings) Validate() error {
	validLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true}
	if !validLevels[strings.ToUpper(s.System.LogLevel)] {
		return ValidationError{Field: "system.log_level", Value: s.System.LogLevel, Message: "must be one of DEBUG, INFO, WARN, ERROR, FATAL"}
	}
	if s.Collector.SnapshotIntervalMs < 100 || s.Collector.SnapshotIntervalMs > 60000 {
		return ValidationError{Field: "collector.snapshot_interval_ms", Value: s.Collector.SnapshotIntervalMs, Message: "must be between 100 and 60000"}
	}
	if s.Collector.MaxRetries < 0 || s.Collector.MaxRetries > 100 {
		return ValidationError{Field: "collector.max_retries", Value: s.Collector.MaxRetries, Message: "must be between 0 and 100"}
	}
	if s.Collector.RetryWindowSec < 1 || s.Collector.RetryWindowSec > 3600 {
		return ValidationError{Field: "collector.retry_window_seconds", Value: s.Collector.RetryWindowSec, Message: "must be between 1 and 3600"}
	}
	if s.Collector.DebounceMs < 10 || s.Collector.DebounceMs > 10000 {
		return ValidationError{Field: "collector.debounce_ms", Value: s.Collector.DebounceMs, Message: "must be between 10 and 10000"}
	}
	if s.Telemetry.MetricsPort < 1 || s.Telemetry.MetricsPort > 65535 {
		return ValidationError{Field: "telemetry.metrics_port", Value: s.Telemetry.MetricsPort, Message: "must be a valid port"}
	}
	return nil
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}
