package api

import (
	"fmt"
	"net/http"

	"Hephaestus/internal/config"
	"Hephaestus/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RateLimit rejects requests with 429 once the limiter runs dry.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

// NewRateLimiter builds the configured rate limiting algorithm.
func NewRateLimiter(cfg config.RateLimiterConfig) (ratelimiter.RateLimiter, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "tokenBucket"
	}

	switch algorithm {
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(cfg.Rate, cfg.Capacity), nil
	case "fixedWindow":
		window, err := config.Duration("middleware.rateLimiter.window", cfg.Window)
		if err != nil {
			return nil, err
		}
		return ratelimiter.NewFixedWindowCounter(cfg.Limit, window), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", algorithm)
	}
}
