package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Cache stores resolved results of idempotent requests, keyed by fingerprint.
// A hit must be semantically equivalent to re-executing the request, so only
// request types the bridge owner marks cacheable are ever stored.
type Cache interface {
	// Get returns the cached value for key and whether a fresh entry existed.
	Get(ctx context.Context, key string) (interface{}, bool, error)
	// Set stores a value under key.
	Set(ctx context.Context, key string, value interface{}) error
}

// Fingerprint derives the deterministic cache key for a request. The payload
// is normalized through canonical JSON (encoding/json writes map keys in
// sorted order), so two payloads with the same content always collide.
func Fingerprint(requestType string, payload map[string]interface{}) (string, error) {
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to normalize payload for %q: %w", requestType, err)
	}
	h := sha256.New()
	h.Write([]byte(requestType))
	h.Write([]byte{0})
	h.Write(normalized)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type memoryEntry struct {
	value     interface{}
	createdAt time.Time
}

// MemoryCache is the default in-process Cache: a map guarded by a RWMutex,
// with entries expiring after a TTL. Expired entries are dropped lazily on
// read.
type MemoryCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates a cache whose entries stay fresh for ttl. A
// non-positive ttl keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (interface{}, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := c.entries[key]; ok && cur.createdAt.Equal(entry.createdAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, createdAt: time.Now()}
	return nil
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
