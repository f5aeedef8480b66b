package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cache is keyed, time-expiring storage for fetch results. It is a pure
// performance layer: a miss (including a backend error surfaced as a miss)
// only costs an upstream call, never correctness.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// HashKey builds an MD5 hex fingerprint from key parts
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// FeedKey fingerprints a feed request. The principal is the configured
// username or, on the token path, the access token — hashed either way so
// tokens never appear in cache keys.
func FeedKey(platform, principal string, limit int) string {
	return fmt.Sprintf("feed:%s:%s", platform, HashKey(principal, strconv.Itoa(limit)))
}

// PlatformPrefix returns the key prefix covering all of a platform's feed
// entries, used by cache-clear operations
func PlatformPrefix(platform string) string {
	return "feed:" + platform + ":"
}
