package auth

import (
	"sync"
	"time"
)

// Limiter is a fixed-window request counter keyed by (route, identity).
// It is an explicit, injectable service: handlers receive it as a
// dependency instead of reaching for process-wide state.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time

	buckets map[limiterKey]*windowCount
}

type limiterKey struct {
	route    string
	identity string
}

type windowCount struct {
	start time.Time
	n     int
}

// NewLimiter builds a limiter allowing max requests per window for each
// (route, identity) pair.
func NewLimiter(window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 120
	}
	return &Limiter{
		window:  window,
		max:     max,
		now:     time.Now,
		buckets: map[limiterKey]*windowCount{},
	}
}

// SetClock overrides the time source; tests pin windows with it.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether the (route, identity) pair may proceed, counting
// the request against the current window.
func (l *Limiter) Allow(route, identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := limiterKey{route: route, identity: identity}
	now := l.now()
	b, ok := l.buckets[k]
	if !ok || now.Sub(b.start) >= l.window {
		l.buckets[k] = &windowCount{start: now, n: 1}
		return true
	}
	if b.n >= l.max {
		return false
	}
	b.n++
	return true
}
