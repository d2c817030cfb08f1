package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Counter is satisfied by *redis.Client.
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisLimiter is a fixed-window counter shared by every replica. When Redis
// is unreachable the request is allowed and the error returned for logging.
type RedisLimiter struct {
	counter Counter
	window  time.Duration
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
}

func NewRedis(counter Counter, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		counter: counter,
		window:  window,
		prefix:  "td:ratelimit:",
		now:     time.Now,
		logger:  slog.Default().With("component", "redis-ratelimit"),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	bucket := l.now().Unix() / int64(l.window.Seconds())
	n, err := l.counter.IncrWindow(ctx, fmt.Sprintf("%s%s:%d", l.prefix, key, bucket), l.window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request", "key", key, "error", err)
		return true, err
	}
	return n <= int64(limit), nil
}
