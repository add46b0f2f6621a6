// Package rediskv implements Redis-backed adapters.
package rediskv

import (
	"context"

	"calllog_server/pkg/apperr"
	"calllog_server/pkg/cache"
)

// RedisKeyValueAdapter stores watermarks and flags in Redis without expiry.
type RedisKeyValueAdapter struct {
	cache *cache.RedisCache
}

func NewRedisKeyValueAdapter(c *cache.RedisCache) *RedisKeyValueAdapter {
	return &RedisKeyValueAdapter{cache: c}
}

func (a *RedisKeyValueAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		return "", false, apperr.ExternalError("redis", err)
	}
	return v, ok, nil
}

func (a *RedisKeyValueAdapter) Put(ctx context.Context, key, value string) error {
	if err := a.cache.Set(ctx, key, value, 0); err != nil {
		return apperr.ExternalError("redis", err)
	}
	return nil
}
