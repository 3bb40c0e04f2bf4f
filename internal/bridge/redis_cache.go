package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Hephaestus/internal/config"

	"github.com/go-redis/redis/v8"
)

// RedisCache backs the bridge result cache with Redis so multiple orchestrator
// processes can share cached toolchain results. Values round-trip through
// JSON: handlers for cacheable request types must return JSON-representable
// values, and cached hits come back as the decoded JSON shape
// (map[string]interface{}, []interface{}, primitives).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisClient connects to Redis using the given configuration and verifies
// the connection with a ping.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewRedisCache wraps an existing Redis client. Entries expire after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		prefix: "hephaestus:bridge:result:",
	}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get failed: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return value, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode result for caching: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set failed: %w", err)
	}
	return nil
}
