package cache

import (
	"context"
	"testing"
	"time"

	"github.com/whatsondev/whatsfeed/internal/settings"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{
			name:  "single part",
			parts: []string{"test"},
		},
		{
			name:  "multiple parts",
			parts: []string{"instagram", "whatson", "6"},
		},
		{
			name:  "empty parts",
			parts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			// Hash should be consistent
			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}

			// Hash should be 32 characters (MD5 hex)
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}

	// Distinct inputs should not collide on the separator
	if HashKey("a", "bc") == HashKey("ab", "c") {
		t.Error("HashKey() should distinguish part boundaries")
	}
}

func TestFeedKey(t *testing.T) {
	tests := []struct {
		name      string
		platform  string
		principal string
		limit     int
		same      bool
		otherKey  string
	}{
		{
			name:      "token never appears in key",
			platform:  "instagram",
			principal: "IGQWRPsecret_token_value",
			limit:     6,
		},
		{
			name:      "limit changes the key",
			platform:  "tiktok",
			principal: "user",
			limit:     6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := FeedKey(tt.platform, tt.principal, tt.limit)
			if key == FeedKey(tt.platform, tt.principal, tt.limit+1) {
				t.Error("FeedKey() should vary with limit")
			}
			if len(tt.principal) > 8 && contains(key, tt.principal) {
				t.Error("FeedKey() must not embed the raw principal")
			}
			if !contains(key, PlatformPrefix(tt.platform)) {
				t.Errorf("FeedKey() = %q should carry the platform prefix", key)
			}
		})
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestRedisCache_NamespaceKey(t *testing.T) {
	c := &RedisCache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "simple key",
			key:      "test",
			expected: "whatsfeed:test",
		},
		{
			name:     "key with colon",
			key:      "feed:instagram:abc",
			expected: "whatsfeed:feed:instagram:abc",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "whatsfeed:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNilRedisCacheIsAlwaysMiss(t *testing.T) {
	var c *RedisCache

	if _, ok := c.Get(context.Background(), "any"); ok {
		t.Error("nil RedisCache should always miss")
	}
	if err := c.Set(context.Background(), "any", "v", time.Minute); err != ErrCacheDisabled {
		t.Errorf("Set() on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := c.DeletePrefix(context.Background(), "feed:"); err != ErrCacheDisabled {
		t.Errorf("DeletePrefix() on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil cache = %v, want nil", err)
	}
}

func TestTransientCacheDeletePrefix(t *testing.T) {
	store := settings.NewMemoryStore()
	c := NewTransient(store)
	ctx := context.Background()

	igKey := FeedKey("instagram", "whatson", 6)
	ttKey := FeedKey("tiktok", "whatson", 6)
	c.Set(ctx, igKey, "[]", time.Hour)
	c.Set(ctx, ttKey, "[]", time.Hour)

	if err := c.DeletePrefix(ctx, PlatformPrefix("instagram")); err != nil {
		t.Fatalf("DeletePrefix() error: %v", err)
	}
	if _, ok := c.Get(ctx, igKey); ok {
		t.Error("instagram entry should be gone")
	}
	if _, ok := c.Get(ctx, ttKey); !ok {
		t.Error("tiktok entry should survive")
	}
}

func TestTransientCacheRoundTrip(t *testing.T) {
	store := settings.NewMemoryStore()
	c := NewTransient(store)
	ctx := context.Background()

	key := FeedKey("instagram", "whatson", 6)
	if err := c.Set(ctx, key, `[{"id":"1"}]`, time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("Get() should hit within TTL")
	}
	if got != `[{"id":"1"}]` {
		t.Errorf("Get() = %q, want the stored value", got)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok := c.Get(ctx, key); ok {
		t.Error("Get() should miss after Delete()")
	}
}

func TestSelect(t *testing.T) {
	store := settings.NewMemoryStore()

	if _, ok := Select(nil, store).(*TransientCache); !ok {
		t.Error("Select() without Redis should return the transient cache")
	}

	rc := &RedisCache{}
	if got := Select(rc, store); got != Cache(rc) {
		t.Error("Select() with Redis should return the Redis cache")
	}
}
