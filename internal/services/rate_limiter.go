package services

import (
	"context"
	"fmt"
	"time"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/infrastructure/cache"
)

// RateLimiterImpl bounds verification emails per email address within a
// fixed window that starts at the first attempt.
type RateLimiterImpl struct {
	store       domain.EphemeralStore
	maxAttempts int
	window      time.Duration
}

// NewRateLimiter creates a limiter allowing maxAttempts sends per window
func NewRateLimiter(store domain.EphemeralStore, maxAttempts int, window time.Duration) *RateLimiterImpl {
	return &RateLimiterImpl{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// RecordAttempt increments the resend counter and returns the new count.
// Rejected attempts are counted too; the counter only resets when its TTL expires.
func (r *RateLimiterImpl) RecordAttempt(ctx context.Context, email string) (int64, error) {
	n, err := r.store.Incr(ctx, cache.ResendCounterKey(email), r.window)
	if err != nil {
		return 0, fmt.Errorf("failed to record verification attempt: %w", err)
	}
	return n, nil
}

// Allowed reports whether the attempt number may send a code
func (r *RateLimiterImpl) Allowed(attempt int64) bool {
	return attempt <= int64(r.maxAttempts)
}

// Limit returns the configured maximum and window
func (r *RateLimiterImpl) Limit() (int, time.Duration) {
	return r.maxAttempts, r.window
}

var _ domain.RateLimiter = (*RateLimiterImpl)(nil)
