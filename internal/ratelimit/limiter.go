// Package ratelimit decides whether the feed may be fetched again.
package ratelimit

import (
	"time"

	"grimm.is/droplist/internal/clock"
)

// Limiter gates feed fetches on the time elapsed since the last successful one.
// It holds no state of its own; the last fetch time comes from the feed cache.
type Limiter struct {
	interval time.Duration
	clock    clock.Clock
}

// NewLimiter creates a limiter for the given minimum interval.
// A nil clock uses clock.Default.
func NewLimiter(interval time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = clock.Default
	}
	return &Limiter{interval: interval, clock: c}
}

// Interval returns the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Allow reports whether a fetch is permitted. last is nil when no usable
// cache exists, which always allows.
func (l *Limiter) Allow(last *time.Time) bool {
	return Allow(last, l.clock.Now(), l.interval)
}

// Remaining returns how long until the next fetch is allowed, 0 if it already is.
func (l *Limiter) Remaining(last *time.Time) time.Duration {
	if last == nil {
		return 0
	}
	wait := l.interval - l.clock.Now().Sub(*last)
	if wait < 0 {
		return 0
	}
	return wait
}

// Allow is the pure decision: no prior fetch, or now-last >= interval.
func Allow(last *time.Time, now time.Time, interval time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= interval
}
