package sessioncache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local cache with per-key expiry. Expired entries are
// dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

// NewMemory returns an empty cache. A nil clock selects time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]memoryEntry), nowFn: now}
}

func (cache *Memory) Get(_ context.Context, key string) (string, bool, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry, ok := cache.liveEntry(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (cache *Memory) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if err := validateKey(key, ttl); err != nil {
		return err
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[key] = memoryEntry{value: value, expiresAt: cache.nowFn().Add(ttl)}
	return nil
}

func (cache *Memory) SetIfAbsent(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if err := validateKey(key, ttl); err != nil {
		return false, err
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if _, ok := cache.liveEntry(key); ok {
		return false, nil
	}
	cache.entries[key] = memoryEntry{value: value, expiresAt: cache.nowFn().Add(ttl)}
	return true, nil
}

func (cache *Memory) Delete(_ context.Context, key string) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, key)
	return nil
}

// Close is a no-op; it lets Memory share the Cache contract with Redis.
func (cache *Memory) Close() error {
	return nil
}

// liveEntry must be called with mu held.
func (cache *Memory) liveEntry(key string) (memoryEntry, bool) {
	entry, ok := cache.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !cache.nowFn().Before(entry.expiresAt) {
		delete(cache.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
