package handlers

import (
	"strings"
	"sync"
	"time"
)

// submitLimiter bounds how often a session may place orders.
type submitLimiter interface {
	// Allow records an attempt for key and returns how long to wait when it is refused.
	Allow(key string) (time.Duration, bool)
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]attemptWindow
}

type attemptWindow struct {
	attempts int
	resetAt  time.Time
}

// newWindowLimiter returns nil when limit or window is not positive; a nil limiter allows
// everything.
func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]attemptWindow),
	}
}

func (l *windowLimiter) Allow(key string) (time.Duration, bool) {
	if l == nil {
		return 0, true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.windows[key]
	if !ok || !now.Before(entry.resetAt) {
		l.windows[key] = attemptWindow{attempts: 1, resetAt: now.Add(l.window)}
		l.pruneLocked(now)
		return 0, true
	}
	if entry.attempts >= l.limit {
		return entry.resetAt.Sub(now), false
	}
	entry.attempts++
	l.windows[key] = entry
	return 0, true
}

func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.windows {
		if !now.Before(entry.resetAt) {
			delete(l.windows, key)
		}
	}
}
