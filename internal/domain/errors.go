package domain

import "errors"

// Caller-visible error taxonomy. Components wrap these with context via
// fmt.Errorf("...: %w", err); callers match with errors.Is.
var (
	// ErrInvalidOrder rejects a malformed submission. No side effects.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrNoMarketData rejects a submission when no price was observed for
	// the symbol within the acceptance timeout. No order is created.
	ErrNoMarketData = errors.New("no market data")

	// ErrUpstreamUnavailable signals that an exchange REST API could not
	// be reached and no cached result was available.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound signals an unknown order token.
	ErrNotFound = errors.New("order not found")

	// ErrUnknownExchange signals an exchange outside the supported set.
	ErrUnknownExchange = errors.New("unknown exchange")

	// ErrDuplicateToken rejects a submission reusing an existing token id.
	ErrDuplicateToken = errors.New("duplicate token id")

	// ErrInvalidRequest rejects malformed non-order queries (bad kline
	// interval, out-of-range limit).
	ErrInvalidRequest = errors.New("invalid request")
)
