package infra

import (
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter for exchange REST endpoints.
// Thread-safe.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a limiter with the given burst size and
// sustained rate (requests per second).
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	for r.tokens < 1 {
		wait := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()
		time.Sleep(wait)
		r.mu.Lock()
		r.refill()
	}
	r.tokens--
}

// TryAcquire takes a token without blocking. Returns false if none is
// available.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill must be called with the mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// Shared limiters for public exchange REST APIs. Binance weights public
// endpoints lightly; Kraken throttles public calls hard, so its limiter
// is conservative to avoid temporary IP bans.
var (
	binanceRestLimiter *RateLimiter
	krakenRestLimiter  *RateLimiter
	restLimiterOnce    sync.Once
)

// GetBinanceRestLimiter returns the shared Binance public-API limiter.
func GetBinanceRestLimiter() *RateLimiter {
	restLimiterOnce.Do(initRestLimiters)
	return binanceRestLimiter
}

// GetKrakenRestLimiter returns the shared Kraken public-API limiter.
func GetKrakenRestLimiter() *RateLimiter {
	restLimiterOnce.Do(initRestLimiters)
	return krakenRestLimiter
}

func initRestLimiters() {
	binanceRestLimiter = NewRateLimiter(10, 10) // 10 req/s, burst 10
	krakenRestLimiter = NewRateLimiter(2, 1)    // 1 req/s, burst 2
}
