package middleware

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SecurityHeaders adds security headers to all responses. The API serves
// JSON only.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		return c.Next()
	}
}

// NoCache marks responses that must always be recomputed (dirty checks,
// trigger endpoints).
func NoCache() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Set("Pragma", "no-cache")
		c.Set("Expires", "0")
		return c.Next()
	}
}

// ETag hashes successful GET bodies. A client that polls the call log gets
// 304 until a refresh changes what it would see.
func ETag() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := c.Method()
		if method != fiber.MethodGet && method != fiber.MethodHead {
			return c.Next()
		}

		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() >= 400 {
			return nil
		}

		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		etag := fmt.Sprintf(`"%x"`, md5.Sum(body))
		c.Set("ETag", etag)

		if c.Get("If-None-Match") == etag {
			c.Status(fiber.StatusNotModified)
			c.Response().SetBody(nil)
		}
		return nil
	}
}

// =============================================================================
// Trigger Limiter
// =============================================================================

// TriggerLimiter caps how often refresh triggers are accepted per client in a
// fixed window. Refreshes are serialized anyway; the limit keeps the queue
// from filling with redundant work.
type TriggerLimiter struct {
	mu       sync.Mutex
	requests map[string]*windowCount
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type windowCount struct {
	count     int
	expiresAt time.Time
}

func NewTriggerLimiter(limit int, window time.Duration) *TriggerLimiter {
	rl := &TriggerLimiter{
		requests: make(map[string]*windowCount),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *TriggerLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP() + " " + c.Path()
		now := rl.now()

		rl.mu.Lock()
		info, ok := rl.requests[key]
		if !ok || now.After(info.expiresAt) {
			info = &windowCount{expiresAt: now.Add(rl.window)}
			rl.requests[key] = info
		}
		info.count++
		count, resetAt := info.count, info.expiresAt
		rl.mu.Unlock()

		remaining := rl.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > rl.limit {
			c.Set("Retry-After", strconv.Itoa(int(resetAt.Sub(now).Seconds())+1))
			return fiber.NewError(fiber.StatusTooManyRequests, "refresh trigger rate limit exceeded")
		}
		return c.Next()
	}
}

// Stop ends the cleanup goroutine.
func (rl *TriggerLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *TriggerLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *TriggerLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, info := range rl.requests {
		if now.After(info.expiresAt) {
			delete(rl.requests, key)
		}
	}
}
