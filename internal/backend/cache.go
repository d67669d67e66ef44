package backend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-storefront/internal/cache"
)

// DirectoryCache keeps voucher directories in Redis as JSON. A nil cache or
// one without a client is a no-op.
type DirectoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDirectoryCache constructs the cache. A non-positive ttl disables it.
func NewDirectoryCache(client *redis.Client, ttl time.Duration) *DirectoryCache {
	return &DirectoryCache{client: client, ttl: ttl}
}

func (c *DirectoryCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached payload into dst and reports whether it existed.
func (c *DirectoryCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v with the configured TTL.
func (c *DirectoryCache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops the cached directory of a user, e.g. after an order used
// up a voucher.
func (c *DirectoryCache) Invalidate(ctx context.Context, userID string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, cache.KeyVoucherDirectory(userID)).Err()
}
