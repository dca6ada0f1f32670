// Package mocks provides in-memory test doubles shared across packages.
package mocks

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aimd54/leafline/internal/cache"
)

var _ cache.Cache = (*MockCache)(nil)

// MockCache is an in-memory implementation of cache.Cache.
// Used for testing without requiring a real Redis instance.
type MockCache struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time

	// Err, when set, is returned by every operation.
	Err error
	// Sets counts successful Set calls.
	Sets int
}

type entry struct {
	value     string
	expiresAt time.Time
}

// NewMockCache creates a new mock cache instance.
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

func (m *MockCache) live(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}

// Get retrieves a value, returning cache.ErrMiss for absent or expired keys.
func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return "", m.Err
	}
	e, ok := m.live(key)
	if !ok {
		return "", cache.ErrMiss
	}
	return e.value, nil
}

// Set stores a value. A zero expiration never expires.
func (m *MockCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.put(key, value, expiration)
	m.Sets++
	return nil
}

func (m *MockCache) put(key string, value interface{}, expiration time.Duration) {
	e := entry{}
	switch v := value.(type) {
	case string:
		e.value = v
	case []byte:
		e.value = string(v)
	default:
		e.value = fmt.Sprint(v)
	}
	if expiration > 0 {
		e.expiresAt = m.now().Add(expiration)
	}
	m.data[key] = e
}

// Del deletes keys from the mock cache.
func (m *MockCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// DelPattern deletes keys matching a glob pattern.
func (m *MockCache) DelPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
		}
	}
	return nil
}

// SetNX sets a value only if the key does not exist.
func (m *MockCache) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.put(key, value, expiration)
	return true, nil
}

// Health always succeeds unless Err is set.
func (m *MockCache) Health(_ context.Context) error {
	return m.Err
}

// Close is a no-op.
func (m *MockCache) Close() error {
	return nil
}

// Keys returns the live keys currently stored.
func (m *MockCache) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if _, ok := m.live(key); ok {
			keys = append(keys, key)
		}
	}
	return keys
}
