package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds the token bucket settings for the per-caller limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// staleAfter bounds limiter memory: a key idle this long is dropped and the
// caller starts over with a full burst.
const staleAfter = 10 * time.Minute

// bucket is refilled lazily on each take.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{buckets: make(map[string]*bucket), cfg: cfg}
}

func (l *limiter) take(key string, now time.Time) (ok bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[key]
	if !found || now.Sub(b.lastSeen) > staleAfter {
		b = &bucket{tokens: float64(l.cfg.BurstSize)}
		l.buckets[key] = b
		l.prune(now)
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
		if limit := float64(l.cfg.BurstSize); b.tokens > limit {
			b.tokens = limit
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		if l.cfg.RequestsPerSecond <= 0 {
			return false, 1
		}
		return false, int((1-b.tokens)/l.cfg.RequestsPerSecond) + 1
	}
	b.tokens--
	return true, 0
}

// prune drops idle buckets. Caller holds the lock.
func (l *limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(l.buckets, key)
		}
	}
}

// RateLimit throttles by caller wallet when authenticated, by client IP
// otherwise. The auth middleware sets wallet_address on the echo context.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := newLimiter(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if wallet, ok := c.Get("wallet_address").(string); ok && wallet != "" {
				key = wallet
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64))

			ok, retryAfter := l.take(key, time.Now())
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
