package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter bounds how often a key may perform an action inside a window.
// Used to throttle payment confirmations per user.
type rateLimiter interface {
	Allow(key string) bool
}

type windowRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]windowBucket
}

type windowBucket struct {
	count     int
	expiresAt time.Time
}

func newWindowRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowRateLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]windowBucket),
	}
}

func (l *windowRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || now.After(bucket.expiresAt) {
		for stale, entry := range l.buckets {
			if now.After(entry.expiresAt) {
				delete(l.buckets, stale)
			}
		}
		l.buckets[key] = windowBucket{count: 1, expiresAt: now.Add(l.window)}
		return true
	}

	if bucket.count >= l.limit {
		return false
	}
	bucket.count++
	l.buckets[key] = bucket
	return true
}
