package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a [Memory] cache created without [WithMaxEntries].
const DefaultMaxEntries = 1024

type memEntry struct {
	val     []byte
	expires time.Time
}

// MemoryOption configures a [Memory] cache.
type MemoryOption func(*Memory)

// WithMaxEntries bounds the number of stored entries.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.max = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// Memory is an in-process [Cache]. Expired entries are dropped lazily.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	max     int
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory returns an empty in-process cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memEntry),
		max:     DefaultMaxEntries,
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements [Cache].
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.val, true
}

// Set implements [Cache]. When the cache is full, expired entries are
// swept first and an arbitrary entry is evicted if that was not enough.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.max {
		for k, e := range m.entries {
			if !now.Before(e.expires) {
				delete(m.entries, k)
			}
		}
		if len(m.entries) >= m.max {
			for k := range m.entries {
				delete(m.entries, k)
				break
			}
		}
	}
	m.entries[key] = memEntry{val: append([]byte(nil), val...), expires: now.Add(ttl)}
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
