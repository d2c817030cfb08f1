// Package ratelimit bounds how many uploads a client may start per window.
// MemoryLimiter suits a single replica; RedisLimiter shares one budget
// across replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether key may make another request under limit per
// window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// entry tracks the token-bucket state for a single key.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// MemoryLimiter is an in-process token bucket. Tokens refill continuously at
// limit per window.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemory(window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*entry),
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for key. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{
			tokens:    float64(limit - 1),
			lastCheck: now,
		}
		return true, nil
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	rate := float64(limit) / l.window.Seconds()
	e.tokens = min(e.tokens+elapsed.Seconds()*rate, float64(limit))
	if e.tokens < 1 {
		return false, nil
	}
	e.tokens--
	return true, nil
}

// Close stops the background cleanup.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// cleanup periodically removes idle entries.
func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-2 * l.window)
			for key, e := range l.entries {
				if e.lastCheck.Before(cutoff) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
