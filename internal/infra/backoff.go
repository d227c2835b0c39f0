package infra

import (
	"time"
)

const (
	// reconnectFloor is the minimum delay between reconnect attempts.
	// Exchange feeds ban aggressive reconnect storms, so the first retry
	// already waits the full floor.
	reconnectFloor = 5 * time.Second
	reconnectCap   = 60 * time.Second
)

// ReconnectDelay returns the delay before reconnect attempt number
// retryCount (0-based): floor * 2^retryCount, capped. Negative counts
// return the floor.
func ReconnectDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return reconnectFloor
	}

	// 2^4 already overshoots the cap; avoid shift overflow on large counts.
	if retryCount > 4 {
		return reconnectCap
	}

	d := reconnectFloor * time.Duration(1<<retryCount)
	if d > reconnectCap {
		return reconnectCap
	}
	return d
}
