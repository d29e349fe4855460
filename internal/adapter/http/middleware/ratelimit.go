package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/pkg/apperror"
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules derives per-group limits from the configured base.
// Reads get the base budget; writes that anchor on the ledger get less.
func DefaultRateLimitRules(base RateLimitRule) map[string]RateLimitRule {
	quarter := base.Limit / 4
	if quarter < 1 {
		quarter = 1
	}
	half := base.Limit / 2
	if half < 1 {
		half = 1
	}
	return map[string]RateLimitRule{
		"read":   base,
		"write":  {Limit: half, Window: base.Window},
		"issue":  {Limit: quarter, Window: base.Window},
		"review": {Limit: half, Window: base.Window},
		"admin":  {Limit: quarter, Window: base.Window},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// A failing limiter lets the request through.
func RateLimiter(limiter ports.RateLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by identity, others by IP.
func extractIdentifier(c *gin.Context) string {
	if caller, _ := Caller(c); caller != "" {
		return caller
	}
	return c.ClientIP()
}

// MemoryRateLimiter is a single-process fixed-window limiter used when no
// Redis is configured.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	id    int64
	count int64
}

var _ ports.RateLimiter = (*MemoryRateLimiter)(nil)

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{windows: make(map[string]memoryWindow), now: time.Now}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	secs := int64(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	id := m.now().Unix() / secs

	m.mu.Lock()
	w := m.windows[key]
	if w.id != id {
		w = memoryWindow{id: id}
	}
	w.count++
	m.windows[key] = w
	// Drop stale windows so idle callers do not accumulate.
	if len(m.windows) > 10_000 {
		for k, v := range m.windows {
			if v.id != id {
				delete(m.windows, k)
			}
		}
	}
	m.mu.Unlock()

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (id + 1) * secs,
	}, nil
}
