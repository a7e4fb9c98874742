package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FixedWindow admits at most max calls per window. The window starts at the
// first call after a reset. Once it is full, calls are booked into the
// following windows, so windowStart may lie in the future.
type FixedWindow struct {
	max         int
	window      time.Duration
	clock       Clock
	count       int
	windowStart time.Time
	mu          sync.Mutex
}

// NewFixedWindow creates a fixed window limiter
func NewFixedWindow(max int, window time.Duration, clock Clock) *FixedWindow {
	if clock == nil {
		clock = SystemClock{}
	}
	if max <= 0 {
		max = 1
	}
	return &FixedWindow{
		max:    max,
		window: window,
		clock:  clock,
	}
}

// Reserve books one call and returns how long the caller must wait before
// proceeding. Concurrent callers never get more than max slots per window.
func (fw *FixedWindow) Reserve() time.Duration {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.clock.Now()
	if fw.windowStart.IsZero() || now.Sub(fw.windowStart) >= fw.window {
		fw.windowStart = now
		fw.count = 0
	}
	if fw.count >= fw.max {
		fw.windowStart = fw.windowStart.Add(fw.window)
		fw.count = 0
	}
	fw.count++

	if wait := fw.windowStart.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Reset starts a fresh window on the next call
func (fw *FixedWindow) Reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.count = 0
	fw.windowStart = time.Time{}
}

// Usage returns the calls booked in the latest window, the ceiling and when
// that window ends
func (fw *FixedWindow) Usage() (used, max int, resetAt time.Time) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.windowStart.IsZero() || fw.clock.Now().Sub(fw.windowStart) >= fw.window {
		return 0, fw.max, time.Time{}
	}
	return fw.count, fw.max, fw.windowStart.Add(fw.window)
}

// TokenBucket smooths request bursts with golang.org/x/time/rate
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a token bucket allowing rps requests per second with the given burst
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is canceled
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Limit returns the current rate in requests per second
func (tb *TokenBucket) Limit() float64 {
	return float64(tb.limiter.Limit())
}

// UpdateLimits adjusts the rate at runtime, e.g. after the upstream pushed back
func (tb *TokenBucket) UpdateLimits(rps float64, burst int) {
	tb.limiter.SetLimit(rate.Limit(rps))
	tb.limiter.SetBurst(burst)
}
