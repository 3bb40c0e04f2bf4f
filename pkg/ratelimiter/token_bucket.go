package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket rate-limits with the token bucket algorithm: tokens accrue at a
// fixed rate up to a burst capacity, and each allowed request consumes one.
type TokenBucket struct {
	rate     float64 // tokens added per second
	capacity float64
	tokens   float64
	lastFill time.Time
	mu       sync.Mutex
}

// NewTokenBucket creates a bucket generating rate tokens per second with the
// given burst capacity. The bucket starts full.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		lastFill: time.Now(),
	}
}

// Allow refills the bucket for the elapsed time and consumes one token if
// available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(tb.lastFill); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastFill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
