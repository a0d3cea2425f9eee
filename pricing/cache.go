// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultCacheTTL is how long a resolved price stays cached.
const DefaultCacheTTL = 1 * time.Hour

// Cache is a Redis-backed read-through cache for model prices.
// Only resolved prices are cached; absence is always re-checked
// against the store so newly priced models show up promptly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a price cache over an existing Redis client
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(provider, model string) string {
	return fmt.Sprintf("price:%s:%s", provider, model)
}

// Get returns the cached price, or (nil, nil) on a cache miss
func (c *Cache) Get(ctx context.Context, provider, model string) (*ModelPrice, error) {
	val, err := c.client.Get(ctx, cacheKey(provider, model)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	var price ModelPrice
	if err := json.Unmarshal([]byte(val), &price); err != nil {
		return nil, fmt.Errorf("failed to decode cached price: %w", err)
	}

	return &price, nil
}

// Set stores a resolved price with the configured TTL
func (c *Cache) Set(ctx context.Context, provider, model string, price *ModelPrice) error {
	data, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("failed to encode price: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(provider, model), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}

	return nil
}
