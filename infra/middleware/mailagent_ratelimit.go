package middleware

import (
	"fmt"
	"sync"
	"time"

	"mailagent_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// UserRateLimiter caps requests per user per window. Requests without a user
// fall back to the client IP, so the session-issuing endpoint is covered too.
type UserRateLimiter struct {
	requests map[string]*requestInfo
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

type requestInfo struct {
	count     int
	expiresAt time.Time
}

func NewUserRateLimiter(limit int, window time.Duration) *UserRateLimiter {
	rl := &UserRateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			rl.cleanup()
		}
	}()

	return rl
}

func (rl *UserRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, info := range rl.requests {
		if now.After(info.expiresAt) {
			delete(rl.requests, key)
		}
	}
}

// Handler enforces the limit. Rejections surface as RATE_LIMITED through the
// error handler, carrying a retry_after hint in seconds.
func (rl *UserRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		key := c.IP()
		if uc := UserContextFrom(c); uc != nil && uc.UserID != "" {
			key = uc.UserID
		}

		now := time.Now()
		rl.mu.Lock()
		info, exists := rl.requests[key]

		if !exists || now.After(info.expiresAt) {
			info = &requestInfo{count: 1, expiresAt: now.Add(rl.window)}
			rl.requests[key] = info
			rl.mu.Unlock()
			rl.setHeaders(c, rl.limit-1, info)
			return c.Next()
		}

		if info.count >= rl.limit {
			rl.mu.Unlock()
			rl.setHeaders(c, 0, info)
			return apperr.New("RATE_LIMITED", "too many requests", fiber.StatusTooManyRequests).
				WithDetail("retry_after", int(info.expiresAt.Sub(now).Seconds()))
		}

		info.count++
		remaining := rl.limit - info.count
		rl.mu.Unlock()

		rl.setHeaders(c, remaining, info)
		return c.Next()
	}
}

func (rl *UserRateLimiter) setHeaders(c *fiber.Ctx, remaining int, info *requestInfo) {
	c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	if info != nil {
		c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.expiresAt.Unix()))
	}
}
