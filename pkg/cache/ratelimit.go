package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FixedWindowLimiter counts hits per key in Redis buckets of a fixed width.
type FixedWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewFixedWindowLimiter builds a limiter. A nil client or non-positive limit disables it.
func NewFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *FixedWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &FixedWindowLimiter{client: client, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Allow increments the counter for key and reports whether the hit fits the window budget.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, nil
	}
	redisKey := l.windowKey(key, l.now())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit %s: %w", redisKey, err)
	}
	return l.withinBudget(incr.Val()), nil
}

// windowKey names the counter for key in the window containing at.
func (l *FixedWindowLimiter) windowKey(key string, at time.Time) string {
	bucket := at.UTC().UnixNano() / int64(l.window)
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
}

func (l *FixedWindowLimiter) withinBudget(count int64) bool {
	return count <= int64(l.limit)
}
