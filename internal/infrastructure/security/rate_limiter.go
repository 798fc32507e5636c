package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"go.uber.org/zap"
)

// RateLimiter counts requests per key in a fixed window.
type RateLimiter interface {
	// Allow records one request for key and reports whether it is within
	// limit, along with how many requests remain in the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

type counter struct {
	count   int
	resetAt time.Time
}

// InMemoryRateLimiter keeps counters in process. Expired windows are dropped
// lazily on the next Allow.
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (rl *InMemoryRateLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, w := range rl.counters {
		if !now.Before(w.resetAt) {
			delete(rl.counters, k)
		}
	}

	w, ok := rl.counters[key]
	if !ok {
		w = &counter{resetAt: now.Add(win)}
		rl.counters[key] = w
	}
	w.count++
	return w.count <= limit, remaining(limit, w.count), nil
}

// RedisRateLimiter shares counters between API instances.
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRateLimiter(client redis.Cmdable) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: "rl:"}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) (bool, int, error) {
	k := rl.prefix + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, win)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count := int(incr.Val())
	return count <= limit, remaining(limit, count), nil
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// RouteRateLimitMiddleware limits requests per authenticated principal, or per
// client IP before authentication. Limiter failures let the request through.
func RouteRateLimitMiddleware(rl RateLimiter, logger *observability.Logger, metrics *observability.Metrics, scope string, limit int, win time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":ip:" + c.ClientIP()
		if p, ok := PrincipalFromContext(c.Request.Context()); ok {
			key = scope + ":" + p.Tenant() + ":" + p.ActorID()
		}

		allowed, left, err := rl.Allow(c.Request.Context(), key, limit, win)
		if err != nil {
			logger.Warn(c.Request.Context(), "Rate limiter unavailable, allowing request",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(left))

		if !allowed {
			if metrics != nil {
				metrics.RateLimitRejections.WithLabelValues(scope).Inc()
			}
			c.Header("Retry-After", strconv.Itoa(int(win.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TOO_MANY_REQUESTS",
					"message": "Rate limit exceeded. Please try again later.",
				},
			})
			return
		}

		c.Next()
	}
}
