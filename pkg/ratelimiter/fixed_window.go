package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindowCounter rate-limits by counting requests inside fixed time
// windows. Cheaper than a token bucket but allows bursts of up to twice the
// limit across a window boundary.
type FixedWindowCounter struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	mu          sync.Mutex
}

// NewFixedWindowCounter creates a counter allowing limit requests per window.
func NewFixedWindowCounter(limit int, window time.Duration) *FixedWindowCounter {
	return &FixedWindowCounter{
		limit:       limit,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow counts the request against the current window, rolling the window
// over when it has elapsed.
func (fw *FixedWindowCounter) Allow() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := time.Now()
	if now.Sub(fw.windowStart) >= fw.window {
		fw.windowStart = now
		fw.count = 0
	}

	if fw.count < fw.limit {
		fw.count++
		return true
	}
	return false
}
