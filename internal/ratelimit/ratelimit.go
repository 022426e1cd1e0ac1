package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a minimum interval between calls across all callers.
// It is a single shared gate: concurrent waiters serialize, each one
// advancing the last-call timestamp before the next is admitted.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous call. Must not be called while holding locks shared with other
// hot paths.
func (l *Limiter) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if remaining := l.interval - time.Since(l.last); remaining > 0 {
			time.Sleep(remaining)
		}
	}

	l.last = time.Now()
}

// SetInterval replaces the minimum interval and returns the previous value,
// so callers can temporarily relax the gate and restore it afterwards.
func (l *Limiter) SetInterval(d time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.interval
	l.interval = d

	return prev
}

// Interval returns the current minimum interval.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.interval
}
