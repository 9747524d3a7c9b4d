// Package ratelimit keeps one token bucket per key, typically a client IP.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"grimm.is/fwplan/internal/clock"
)

// Limiter manages rate limiting for multiple keys. Each key may make limit
// requests per interval, with bursts of up to limit.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	every    rate.Limit
	burst    int
	clock    clock.Clock
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing limit requests per interval per key.
// A nil clock means the real clock.
func NewLimiter(clk clock.Clock, limit int, interval time.Duration) *Limiter {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	if limit <= 0 {
		limit = 1
	}
	return &Limiter{
		limiters: make(map[string]*bucket),
		every:    rate.Every(interval / time.Duration(limit)),
		burst:    limit,
		clock:    clk,
	}
}

// Allow reports whether a request for key may proceed now and consumes a
// token if so.
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Cleanup forgets keys not seen for maxIdle and returns how many were removed.
func (l *Limiter) Cleanup(maxIdle time.Duration) int {
	cutoff := l.clock.Now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
