package vending

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const sessionKey = "buyer@example.com"

func mustSessionGuard(test *testing.T, cache SessionCache, ttl time.Duration) *SessionGuard {
	test.Helper()
	guard, err := NewSessionGuard(cache, ttl)
	if err != nil {
		test.Fatalf("session guard: %v", err)
	}
	return guard
}

func TestNewSessionGuardValidatesDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewSessionGuard(nil, time.Minute); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
	guard := mustSessionGuard(test, newStubCache(), 0)
	if guard.TTL() != DefaultSessionTTL {
		test.Fatalf("expected default ttl, got %s", guard.TTL())
	}
}

func TestTryAcquireWritesMarker(test *testing.T) {
	test.Parallel()
	cache := newStubCache()
	guard := mustSessionGuard(test, cache, 0)
	if err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return true }); err != nil {
		test.Fatalf("acquire: %v", err)
	}
	value, found := cache.valueOf(sessionKey)
	if !found || value != buyerIDValue {
		test.Fatalf("expected marker %q, got %q (found=%v)", buyerIDValue, value, found)
	}
	if cache.lastTTL != DefaultSessionTTL {
		test.Fatalf("expected ttl %s, got %s", DefaultSessionTTL, cache.lastTTL)
	}
}

func TestTryAcquireFailsWhileMarkerLive(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		valid bool
	}{
		{name: "correct credentials", valid: true},
		{name: "wrong credentials", valid: false},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			cache := newStubCache()
			guard := mustSessionGuard(test, cache, time.Minute)
			if err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return true }); err != nil {
				test.Fatalf("first acquire: %v", err)
			}
			verifyCalls := 0
			err := guard.TryAcquire(context.Background(), sessionKey, "someone-else", func() bool {
				verifyCalls++
				return testCase.valid
			})
			expectFailure(test, err, KindSessionConflict, ErrSessionActive)
			if verifyCalls != 0 {
				test.Fatalf("expected verify not to run, ran %d times", verifyCalls)
			}
			if value, _ := cache.valueOf(sessionKey); value != buyerIDValue {
				test.Fatalf("expected original marker to survive, got %q", value)
			}
		})
	}
}

func TestTryAcquireRejectsBadCredentials(test *testing.T) {
	test.Parallel()
	cache := newStubCache()
	guard := mustSessionGuard(test, cache, time.Minute)
	err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return false })
	expectFailure(test, err, KindAuthenticationFailure, ErrInvalidCredentials)
	if _, found := cache.valueOf(sessionKey); found {
		test.Fatalf("expected no marker after failed verification")
	}
	err = guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, nil)
	expectFailure(test, err, KindAuthenticationFailure, ErrInvalidCredentials)
}

func TestTryAcquireSucceedsAfterReleaseOrExpiry(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		clear func(test *testing.T, guard *SessionGuard, cache *stubCache)
	}{
		{
			name: "release",
			clear: func(test *testing.T, guard *SessionGuard, cache *stubCache) {
				if err := guard.Release(context.Background(), sessionKey); err != nil {
					test.Fatalf("release: %v", err)
				}
			},
		},
		{
			name: "ttl expiry",
			clear: func(test *testing.T, guard *SessionGuard, cache *stubCache) {
				cache.advance(guard.TTL())
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			cache := newStubCache()
			guard := mustSessionGuard(test, cache, 30*time.Minute)
			always := func() bool { return true }
			if err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, always); err != nil {
				test.Fatalf("first acquire: %v", err)
			}
			cache.advance(29 * time.Minute)
			if active, err := guard.IsActive(context.Background(), sessionKey); err != nil || !active {
				test.Fatalf("expected marker still live, active=%v err=%v", active, err)
			}
			testCase.clear(test, guard, cache)
			if err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, always); err != nil {
				test.Fatalf("expected reacquire to succeed, got %v", err)
			}
		})
	}
}

func TestTryAcquireFallsBackToPlainSet(test *testing.T) {
	test.Parallel()
	inner := newStubCache()
	guard := mustSessionGuard(test, plainCache{inner: inner}, time.Minute)
	if err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return true }); err != nil {
		test.Fatalf("acquire: %v", err)
	}
	if _, found := inner.valueOf(sessionKey); !found {
		test.Fatalf("expected marker written through Set")
	}
}

func TestTryAcquireReportsLostRace(test *testing.T) {
	test.Parallel()
	guard := mustSessionGuard(test, racingCache{stubCache: newStubCache()}, time.Minute)
	err := guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return true })
	expectFailure(test, err, KindSessionConflict, ErrSessionActive)
}

func TestSessionGuardHidesCacheErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(cache *stubCache)
		run       func(guard *SessionGuard) error
	}{
		{
			name:      "get",
			configure: func(cache *stubCache) { cache.getErr = errCacheFailure },
			run: func(guard *SessionGuard) error {
				return guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return true })
			},
		},
		{
			name:      "set",
			configure: func(cache *stubCache) { cache.setErr = errCacheFailure },
			run: func(guard *SessionGuard) error {
				return guard.TryAcquire(context.Background(), sessionKey, buyerIDValue, func() bool { return true })
			},
		},
		{
			name:      "delete",
			configure: func(cache *stubCache) { cache.delErr = errCacheFailure },
			run: func(guard *SessionGuard) error {
				return guard.Release(context.Background(), sessionKey)
			},
		},
		{
			name:      "is active",
			configure: func(cache *stubCache) { cache.getErr = errCacheFailure },
			run: func(guard *SessionGuard) error {
				_, err := guard.IsActive(context.Background(), sessionKey)
				return err
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			cache := newStubCache()
			testCase.configure(cache)
			err := testCase.run(mustSessionGuard(test, cache, time.Minute))
			expectFailure(test, err, KindPersistenceFailure, ErrSessionUnavailable)
			if !errors.Is(err, errCacheFailure) {
				test.Fatalf("expected cause to be kept, got %v", err)
			}
			if strings.Contains(MessageOf(err), errCacheMessage) {
				test.Fatalf("message leaks cache detail: %q", MessageOf(err))
			}
		})
	}
}
