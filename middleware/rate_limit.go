package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
)

// pruneThreshold bounds how many idle keys are kept before a sweep.
const pruneThreshold = 1024

type bucket struct {
	start time.Time
	count int
}

// RateLimiter is a fixed window counter per key. Each key gets its own
// window, starting at its first request.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int           // requests per window
	window  time.Duration // time window
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Allow records a request for key. When the key is over its limit it
// returns false and the time until its window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.buckets) > pruneThreshold {
		for k, b := range l.buckets {
			if now.Sub(b.start) >= l.window {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		b = &bucket{start: now}
		l.buckets[key] = b
	}
	if b.count >= l.rate {
		return false, b.start.Add(l.window).Sub(now)
	}
	b.count++
	return true, 0
}

// RateLimit middleware limits requests per client IP
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	return RateLimitBy(NewRateLimiter(rate, window), func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RateLimitBy limits requests using a caller chosen key, such as the
// authenticated user.
func RateLimitBy(limiter *RateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		ok, retryAfter := limiter.Allow(k)
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"key", k,
				"path", c.Request.URL.Path,
			)

			secs := int(retryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
				"code":  "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}
