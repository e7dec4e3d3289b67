package domain

import "errors"

// Generate-action failures. Callers match with errors.Is; every layer wraps
// with context using %w.
var (
	ErrInvalidAddress          = errors.New("invalid address")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrRateFetch               = errors.New("rate fetch failed")
	ErrUnsupportedCurrencyPair = errors.New("unsupported currency pair")

	// ErrStale marks a result superseded by a newer generate action.
	ErrStale = errors.New("stale result")
)
