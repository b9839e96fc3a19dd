// Package sessioncache provides the key-value backends behind the login session guard.
package sessioncache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/go-redis/redis/v8"
)

const (
	schemeMemory = "memory"
	schemeRedis  = "redis"
	schemeRedisS = "rediss"

	// DefaultKeyPrefix namespaces session markers in a shared redis.
	DefaultKeyPrefix = "vending:session:"

	operationGet    = "get"
	operationSet    = "set"
	operationDelete = "delete"
	operationPing   = "ping"
	operationOpen   = "open"
)

var (
	ErrUnsupportedURL = errors.New("unsupported session cache url")
	ErrInvalidEntry   = errors.New("session cache key and positive ttl are required")
)

// Cache is a session cache that owns resources.
type Cache interface {
	vending.ConditionalSessionCache
	Close() error
}

// Open selects a backend from rawURL: memory:// or redis[s]://.
func Open(rawURL string) (Cache, error) {
	trimmed := strings.TrimSpace(rawURL)
	scheme, _, found := strings.Cut(trimmed, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	switch strings.ToLower(scheme) {
	case schemeMemory:
		return NewMemory(nil), nil
	case schemeRedis, schemeRedisS:
		options, err := redis.ParseURL(trimmed)
		if err != nil {
			return nil, wrapCacheError(operationOpen, err)
		}
		return NewRedis(redis.NewClient(options), DefaultKeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
}

func validateKey(key string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" || ttl <= 0 {
		return ErrInvalidEntry
	}
	return nil
}

func wrapCacheError(operation string, err error) error {
	return vending.WrapError("session_cache", operation, "backend", err)
}
