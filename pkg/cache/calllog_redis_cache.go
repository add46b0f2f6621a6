package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache Redis 기반 캐시 구현
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 새 Redis 캐시 생성
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Key applies the namespace prefix.
func (c *RedisCache) Key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get 캐시에서 값 조회. A missing key is reported as found=false, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 캐시에 값 저장 (ttl 0 = 만료 없음)
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.Key(key), value, ttl).Err()
}

// Increment 값 증가
func (c *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, c.Key(key)).Result()
}

// SetMembers reports membership of every member in the set stored at key.
func (c *RedisCache) SetMembers(ctx context.Context, key string, members []string) (map[string]bool, error) {
	result := make(map[string]bool, len(members))
	if len(members) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	flags, err := c.client.SMIsMember(ctx, c.Key(key), args...).Result()
	if err != nil {
		return nil, err
	}
	for i, m := range members {
		result[m] = flags[i]
	}
	return result, nil
}

// AddToSet 집합에 멤버 추가
func (c *RedisCache) AddToSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.client.SAdd(ctx, c.Key(key), args...).Err()
}

// RemoveFromSet 집합에서 멤버 제거
func (c *RedisCache) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.client.SRem(ctx, c.Key(key), args...).Err()
}
