package sessioncache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis stores markers in a shared redis instance so every replica sees the
// same sessions.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis wraps an existing client. keyPrefix is prepended to every key.
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (cache *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := cache.client.Get(ctx, cache.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapCacheError(operationGet, err)
	}
	return value, true, nil
}

func (cache *Redis) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := validateKey(key, ttl); err != nil {
		return err
	}
	if err := cache.client.Set(ctx, cache.keyPrefix+key, value, ttl).Err(); err != nil {
		return wrapCacheError(operationSet, err)
	}
	return nil
}

func (cache *Redis) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if err := validateKey(key, ttl); err != nil {
		return false, err
	}
	written, err := cache.client.SetNX(ctx, cache.keyPrefix+key, value, ttl).Result()
	if err != nil {
		return false, wrapCacheError(operationSet, err)
	}
	return written, nil
}

func (cache *Redis) Delete(ctx context.Context, key string) error {
	if err := cache.client.Del(ctx, cache.keyPrefix+key).Err(); err != nil {
		return wrapCacheError(operationDelete, err)
	}
	return nil
}

// Ping checks connectivity.
func (cache *Redis) Ping(ctx context.Context) error {
	if err := cache.client.Ping(ctx).Err(); err != nil {
		return wrapCacheError(operationPing, err)
	}
	return nil
}

func (cache *Redis) Close() error {
	return cache.client.Close()
}
