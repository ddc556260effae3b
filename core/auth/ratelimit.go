package auth

import (
	"context"
	"time"
)

// RateLimitStore persists hit counters so limits survive process restarts
// and hold across instances.
type RateLimitStore interface {
	// IncrementHits adds a hit under key within the current window and
	// returns the post-increment count, atomically.
	IncrementHits(ctx context.Context, key string, window time.Duration) (int, error)
	// ResetHits clears the counter; clearing an absent counter is a no-op.
	ResetHits(ctx context.Context, key string) error
}

// RateLimiter is a fixed-window limiter keyed by identity. A nil *RateLimiter
// allows everything.
type RateLimiter struct {
	store  RateLimitStore
	max    int
	window time.Duration
}

func NewRateLimiter(store RateLimitStore, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, max: max, window: window}
}

// Allow records a hit for identity under scope and fails once the window
// budget is exhausted.
func (rl *RateLimiter) Allow(ctx context.Context, scope, identity string) error {
	if rl == nil {
		return nil
	}
	hits, err := rl.store.IncrementHits(ctx, scope+":"+identity, rl.window)
	if err != nil {
		return internalError(err, "counting rate-limit hit")
	}
	if hits > rl.max {
		return errTooManyRequests
	}
	return nil
}

// Reset clears the budget for identity, typically after a successful attempt.
func (rl *RateLimiter) Reset(ctx context.Context, scope, identity string) error {
	if rl == nil {
		return nil
	}
	return rl.store.ResetHits(ctx, scope+":"+identity)
}
