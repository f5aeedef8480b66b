package settings

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type expiringValue struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process settings store. It backs the server when no
// database is configured and doubles as the test fixture for every layer
// built on Store.
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[string]string
	expirings map[string]expiringValue
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory settings store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    make(map[string]string),
		expirings: make(map[string]expiringValue),
		now:       time.Now,
	}
}

// SetClock overrides the store's clock; tests use this to expire values
// without sleeping
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// GetString retrieves a string value, returning def when absent
func (s *MemoryStore) GetString(_ context.Context, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetInt retrieves an integer value, returning def when absent or unparsable
func (s *MemoryStore) GetInt(ctx context.Context, key string, def int) int {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return i
}

// SetValue stores a value, overwriting any existing one
func (s *MemoryStore) SetValue(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// DeleteValue removes a value
func (s *MemoryStore) DeleteValue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// GetExpiring retrieves an unexpired transient value
func (s *MemoryStore) GetExpiring(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.expirings[key]
	if !ok {
		return "", false
	}
	if s.now().After(ev.expiresAt) {
		delete(s.expirings, key)
		return "", false
	}
	return ev.value, true
}

// SetExpiring stores a transient value with a TTL
func (s *MemoryStore) SetExpiring(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirings[key] = expiringValue{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// DeleteExpiring removes a transient value
func (s *MemoryStore) DeleteExpiring(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expirings, key)
	return nil
}

// DeleteExpiringPrefix removes every transient value under a key prefix
func (s *MemoryStore) DeleteExpiringPrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.expirings {
		if strings.HasPrefix(key, prefix) {
			delete(s.expirings, key)
		}
	}
	return nil
}
