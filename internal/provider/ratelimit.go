package provider

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is the per-account outbound call budget when the
// config does not override it.
const DefaultRequestsPerMinute = 60

// RateLimiter is a sliding one-minute-window limiter for outbound provider
// calls. Each gateway instance owns its own limiter (one per provider-account
// pair) — there is no process-wide shared state.
//
// When the window is exhausted, Wait blocks until capacity frees rather than
// failing: provider rate limits are transient and aborting an otherwise
// healthy sync over one would be needless.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   []time.Time // timestamps of calls inside the window, oldest first

	// now and sleep are injectable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter allowing max calls per sliding window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max < 1 {
		max = DefaultRequestsPerMinute
	}

	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		max:    max,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until the caller may make one outbound call, or until ctx is
// canceled. On success the call is recorded in the window.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)

		if len(l.sent) < l.max {
			l.sent = append(l.sent, now)
			l.mu.Unlock()

			return nil
		}

		// Window full: sleep until the oldest entry ages out, then re-check.
		wait := l.window - now.Sub(l.sent[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops entries older than the window. Caller holds l.mu.
func (l *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0

	for idx < len(l.sent) && !l.sent[idx].After(cutoff) {
		idx++
	}

	if idx > 0 {
		l.sent = append(l.sent[:0], l.sent[idx:]...)
	}
}

// sleepContext waits for d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
