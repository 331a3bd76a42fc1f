// Package feed provides exchange feed implementations
package feed

import (
	"fmt"
	"strings"

	"book_collector/internal/core"
	"book_collector/internal/feed/binance"
	"book_collector/internal/feed/bitkub"
	apperrors "book_collector/pkg/errors"
)

// NewFeed creates a feed for the named exchange. The set of supported
// exchanges is closed; an unknown name is a startup error, not something
// to retry.
func NewFeed(exchangeName string, logger core.ILogger) (core.IFeed, error) {
	switch strings.ToUpper(exchangeName) {
	case "BINANCE":
		return binance.NewFeed(logger), nil
	case "BITKUB":
		return bitkub.NewFeed(logger), nil
	default:
		return nil, fmt.Errorf("%s: %w", exchangeName, apperrors.ErrUnsupportedExchange)
	}
}
