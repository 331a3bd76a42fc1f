// Package config handles configuration management with validation
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"book_collector/internal/market"
	apperrors "book_collector/pkg/errors"
)

// Config is the operator-editable runtime configuration watched at
// runtime. It names the exchange and the set of symbols to collect.
type Config struct {
	CEX     string   `json:"cex"`
	Tickers []string `json:"tickers"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads and validates the runtime configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates raw JSON configuration content
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v: %w", err, apperrors.ErrConfigInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %v: %w", err, apperrors.ErrConfigInvalid)
	}
	return &cfg, nil
}

// Validate checks the exchange name and every ticker. An empty ticker
// list is valid and means collect nothing.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CEX) == "" {
		return ValidationError{Field: "cex", Value: c.CEX, Message: "exchange name is required"}
	}
	for _, sym := range c.Tickers {
		if _, err := market.ParseTicker(sym); err != nil {
			return ValidationError{Field: "tickers", Value: sym, Message: err.Error()}
		}
	}
	return nil
}

// Exchange returns the canonical upper-case exchange name
func (c *Config) Exchange() string {
	return strings.ToUpper(strings.TrimSpace(c.CEX))
}

// TickerSet returns the configured tickers keyed by canonical symbol,
// collapsing duplicates.
func (c *Config) TickerSet() map[string]market.Ticker {
	set := make(map[string]market.Ticker, len(c.Tickers))
	for _, sym := range c.Tickers {
		t, err := market.ParseTicker(sym)
		if err != nil {
			continue // Validate rejects these before the set is used
		}
		set[t.String()] = t
	}
	return set
}

// Symbols returns the deduplicated canonical symbols in sorted order
func (c *Config) Symbols() []string {
	set := c.TickerSet()
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether two configs name the same exchange and symbol set
func (c *Config) Equal(other *Config) bool {
	if other == nil {
		return false
	}
	if c.Exchange() != other.Exchange() {
		return false
	}
	a, b := c.Symbols(), other.Symbols()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
