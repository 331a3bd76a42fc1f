package apperrors

import "errors"

// Standardized collector errors. Wrap with fmt.Errorf("...: %w", err) so
// callers can classify with errors.Is.
var (
	// Configuration
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrExchangeChanged     = errors.New("exchange change requires restart")

	// Feed
	ErrFeedClosed    = errors.New("feed stream closed")
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrNetwork       = errors.New("network error")

	// Order book integrity
	ErrBookAnomalous = errors.New("order book anomalous")
	ErrOutOfSequence = errors.New("update out of sequence")
	ErrCrossedBook   = errors.New("crossed order book")

	// Persistence
	ErrPersist = errors.New("snapshot persistence failed")
)
