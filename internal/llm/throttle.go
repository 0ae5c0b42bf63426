package llm

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall time and sleeping so throttle behavior is testable
// without real timers.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock returns the wall-time Clock used outside of tests.
func RealClock() Clock { return realClock{} }

// Throttle is the per-client request pacing state. It has two states:
// ready (now >= nextRequestAt) and throttled (now < nextRequestAt). A 429
// response moves it to throttled with a provider-dictated delay; a success
// schedules the next request after the current retry-after interval.
//
// Each client owns exactly one Throttle; state is never shared across
// clients, so two different providers never block each other.
type Throttle struct {
	clock Clock

	mu            sync.Mutex
	nextRequestAt time.Time
	retryAfter    time.Duration
}

// NewThrottle creates a ready Throttle on the wall clock.
func NewThrottle() *Throttle {
	return NewThrottleWithClock(realClock{})
}

// NewThrottleWithClock creates a ready Throttle on the given clock.
func NewThrottleWithClock(clock Clock) *Throttle {
	return &Throttle{clock: clock}
}

// Wait blocks until the throttle is ready, or until ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	d := t.nextRequestAt.Sub(t.clock.Now())
	t.mu.Unlock()
	if d <= 0 {
		return nil
	}
	return t.clock.Sleep(ctx, d)
}

// Success records a completed request and paces the next one to
// now + retryAfter + jitter, where retryAfter is whatever interval the
// provider last dictated (zero if it never has).
func (t *Throttle) Success(jitter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextRequestAt = t.clock.Now().Add(t.retryAfter + jitter)
}

// Throttled transitions to the throttled state: the next request may not be
// sent before now + retryAfter + extra.
func (t *Throttle) Throttled(retryAfter, extra time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryAfter = retryAfter
	t.nextRequestAt = t.clock.Now().Add(retryAfter + extra)
}

// Reset clears all pacing state, returning the throttle to ready.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryAfter = 0
	t.nextRequestAt = time.Time{}
}

// RetryAfter returns the interval the provider last dictated.
func (t *Throttle) RetryAfter() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryAfter
}
