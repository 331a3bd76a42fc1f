// Package market defines trading pair identifiers shared by feeds and collectors
package market

import (
	"fmt"
	"strings"
)

// Ticker represents a trading pair. The canonical form is "BASE_QUOTE",
// e.g. "BTC_USDT". Equality is by value; feeds translate a Ticker into
// their own native symbol encoding.
type Ticker struct {
	Base  string
	Quote string
}

// ParseTicker parses a canonical "BASE_QUOTE" symbol string
func ParseTicker(symbol string) (Ticker, error) {
	idx := strings.Index(symbol, "_")
	if idx <= 0 || idx == len(symbol)-1 {
		return Ticker{}, fmt.Errorf("invalid symbol format: %q (want BASE_QUOTE)", symbol)
	}
	return Ticker{
		Base:  symbol[:idx],
		Quote: symbol[idx+1:],
	}, nil
}

// String returns the canonical "BASE_QUOTE" form
func (t Ticker) String() string {
	return t.Base + "_" + t.Quote
}
