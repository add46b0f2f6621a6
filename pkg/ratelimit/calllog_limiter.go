// Package ratelimit throttles calls to remote lookup APIs.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// SlidingWindowLimiter - Redis 기반 Sliding Window Rate Limiter
// =============================================================================

// SlidingWindowLimiter allows rate+burst calls per window and key. With Redis
// the window is shared by every process; without it (or when Redis fails)
// a local window is used.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	local map[string][]time.Time
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

// NewSlidingWindowLimiter creates a limiter of requestsPerSecond plus
// burstSize calls per second. redisClient may be nil.
func NewSlidingWindowLimiter(redisClient *redis.Client, requestsPerSecond, burstSize int) *SlidingWindowLimiter {
	max := requestsPerSecond + burstSize
	if max <= 0 {
		max = 1
	}
	return &SlidingWindowLimiter{
		redis:  redisClient,
		max:    max,
		window: time.Second,
		now:    time.Now,
		local:  make(map[string][]time.Time),
	}
}

// Allow records a call when allowed, otherwise returns how long to wait.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.redis != nil {
		if allowed, wait, err := l.allowRedis(ctx, key); err == nil {
			return allowed, wait
		}
	}
	return l.allowLocal(key)
}

// Wait blocks until a call for key is allowed or ctx ends.
func (l *SlidingWindowLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, wait := l.Allow(ctx, key)
		if allowed {
			return nil
		}
		if wait <= 0 {
			wait = l.window
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *SlidingWindowLimiter) allowRedis(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	result, err := slidingWindowScript.Run(ctx, l.redis, []string{fmt.Sprintf("ratelimit:%s", key)},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.max,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, 0, err
	}

	switch {
	case result == 1:
		return true, 0, nil
	case result < 0:
		return false, time.Duration(-result) * time.Millisecond, nil
	default:
		return false, l.window, nil
	}
}

func (l *SlidingWindowLimiter) allowLocal(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	calls := l.local[key]
	kept := calls[:0]
	for _, at := range calls {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}

	if len(kept) < l.max {
		l.local[key] = append(kept, now)
		return true, 0
	}
	l.local[key] = kept
	return false, kept[0].Add(l.window).Sub(now)
}
