package ratelimiter

// RateLimiter is implemented by all rate limiting algorithms in this package.
type RateLimiter interface {
	// Allow reports whether one more request may proceed right now.
	Allow() bool
}
