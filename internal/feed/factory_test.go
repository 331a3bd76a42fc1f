package feed

import (
	"errors"
	"testing"

	apperrors "book_collector/pkg/errors"
	"book_collector/pkg/logging"
)

func TestNewFeed(t *testing.T) {
	logger, _ := logging.NewZapLogger("INFO")

	f, err := NewFeed("binance", logger)
	if err != nil {
		t.Fatalf("Failed to create binance feed: %v", err)
	}
	if f.Name() != "BINANCE" {
		t.Errorf("Expected BINANCE, got %s", f.Name())
	}

	f, err = NewFeed("BITKUB", logger)
	if err != nil {
		t.Fatalf("Failed to create bitkub feed: %v", err)
	}
	if f.Name() != "BITKUB" {
		t.Errorf("Expected BITKUB, got %s", f.Name())
	}

	_, err = NewFeed("KRAKEN", logger)
	if err == nil {
		t.Fatal("Expected error for unsupported exchange")
	}
	if !errors.Is(err, apperrors.ErrUnsupportedExchange) {
		t.Errorf("Expected ErrUnsupportedExchange, got %v", err)
	}
}
