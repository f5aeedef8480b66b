package settings

import (
	"context"
	"time"
)

// Store persists named configuration values. Plain values live until
// deleted; expiring values are treated as absent once their TTL passes.
// The cache and credential layers are both built on this contract, so an
// implementation must never return stale expiring values.
type Store interface {
	GetString(ctx context.Context, key, def string) string
	GetInt(ctx context.Context, key string, def int) int
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error

	GetExpiring(ctx context.Context, key string) (string, bool)
	SetExpiring(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteExpiring(ctx context.Context, key string) error
	DeleteExpiringPrefix(ctx context.Context, prefix string) error
}
