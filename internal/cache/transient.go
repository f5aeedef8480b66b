package cache

import (
	"context"
	"time"

	"github.com/whatsondev/whatsfeed/internal/settings"
)

// TransientCache stores cache entries in the settings store's expiring-value
// tables. It is the fallback backend when Redis is not configured.
type TransientCache struct {
	store settings.Store
}

// NewTransient creates a cache over a settings store
func NewTransient(store settings.Store) *TransientCache {
	return &TransientCache{store: store}
}

func (c *TransientCache) transientKey(key string) string {
	return "cache:" + key
}

// Get retrieves a value from the transient tables
func (c *TransientCache) Get(ctx context.Context, key string) (string, bool) {
	return c.store.GetExpiring(ctx, c.transientKey(key))
}

// Set stores a value with a TTL
func (c *TransientCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.store.SetExpiring(ctx, c.transientKey(key), value, ttl)
}

// Delete removes a value
func (c *TransientCache) Delete(ctx context.Context, key string) error {
	return c.store.DeleteExpiring(ctx, c.transientKey(key))
}

// DeletePrefix removes every value under a key prefix
func (c *TransientCache) DeletePrefix(ctx context.Context, prefix string) error {
	return c.store.DeleteExpiringPrefix(ctx, c.transientKey(prefix))
}

// Select returns the Redis cache when available, otherwise a settings-backed
// transient cache. The caller always gets a usable Cache.
func Select(redisCache *RedisCache, store settings.Store) Cache {
	if redisCache != nil {
		return redisCache
	}
	return NewTransient(store)
}
