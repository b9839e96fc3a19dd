package vending

import (
	"context"
	"fmt"
	"time"
)

// SessionCache is the key-value capability backing SessionGuard.
// Get reports found=false for a missing or expired key.
type SessionCache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ConditionalSessionCache is implemented by caches that can write a key only when
// it is absent. SessionGuard uses it to close the window between its presence
// check and its write.
type ConditionalSessionCache interface {
	SessionCache
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// SessionGuard allows at most one live login per identity. A marker in the
// cache means a session is active; it disappears on Release or when its TTL
// elapses. Nothing renews the marker except a new acquisition.
type SessionGuard struct {
	cache SessionCache
	ttl   time.Duration
}

// NewSessionGuard wires a guard over cache. A non-positive ttl selects DefaultSessionTTL.
func NewSessionGuard(cache SessionCache, ttl time.Duration) (*SessionGuard, error) {
	if cache == nil {
		return nil, fmt.Errorf("%w: session cache dependency is nil", ErrInvalidServiceConfig)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionGuard{cache: cache, ttl: ttl}, nil
}

// TTL returns the marker lifetime.
func (guard *SessionGuard) TTL() time.Duration {
	return guard.ttl
}

// TryAcquire fails with ErrSessionActive when a marker exists, without calling
// verify. Otherwise verify decides whether the credentials are valid, and on
// success a marker holding value is written under key.
func (guard *SessionGuard) TryAcquire(ctx context.Context, key string, value string, verify func() bool) error {
	_, found, err := guard.cache.Get(ctx, key)
	if err != nil {
		return fail(KindPersistenceFailure, ErrSessionUnavailable, err)
	}
	if found {
		return fail(KindSessionConflict, ErrSessionActive, nil)
	}
	if verify == nil || !verify() {
		return fail(KindAuthenticationFailure, ErrInvalidCredentials, nil)
	}
	if conditional, ok := guard.cache.(ConditionalSessionCache); ok {
		written, err := conditional.SetIfAbsent(ctx, key, value, guard.ttl)
		if err != nil {
			return fail(KindPersistenceFailure, ErrSessionUnavailable, err)
		}
		if !written {
			return fail(KindSessionConflict, ErrSessionActive, nil)
		}
		return nil
	}
	if err := guard.cache.Set(ctx, key, value, guard.ttl); err != nil {
		return fail(KindPersistenceFailure, ErrSessionUnavailable, err)
	}
	return nil
}

// Release removes the marker for key no matter who wrote it.
func (guard *SessionGuard) Release(ctx context.Context, key string) error {
	if err := guard.cache.Delete(ctx, key); err != nil {
		return fail(KindPersistenceFailure, ErrSessionUnavailable, err)
	}
	return nil
}

// IsActive reports whether a marker exists for key.
func (guard *SessionGuard) IsActive(ctx context.Context, key string) (bool, error) {
	_, found, err := guard.cache.Get(ctx, key)
	if err != nil {
		return false, fail(KindPersistenceFailure, ErrSessionUnavailable, err)
	}
	return found, nil
}
