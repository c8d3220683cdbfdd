package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DayLayout keys rate-limit counters by UTC calendar date.
const DayLayout = "2006-01-02"

// RateLimiter enforces a per-UTC-day quota on upstream calls.
type RateLimiter struct {
	store  Store
	limit  int
	now    Clock
	logger *logrus.Logger
}

func NewRateLimiter(store Store, dailyLimit int, now Clock, logger *logrus.Logger) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RateLimiter{store: store, limit: dailyLimit, now: now, logger: logger}
}

// Today returns the counter key for the current UTC date.
func (r *RateLimiter) Today() string {
	return r.now().UTC().Format(DayLayout)
}

// Limit returns the configured daily quota.
func (r *RateLimiter) Limit() int {
	return r.limit
}

// CheckAndIncrement consumes one unit of today's quota if any is left.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, dailyLimit int) (bool, error) {
	if dailyLimit <= 0 {
		return false, nil
	}
	allowed, err := r.store.CheckAndIncrement(ctx, r.Today(), dailyLimit)
	if err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	return allowed, nil
}

// Acquire consumes one unit of the configured quota or returns ErrRateLimitExceeded.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	allowed, err := r.CheckAndIncrement(ctx, r.limit)
	if err != nil {
		return err
	}
	if !allowed {
		r.logger.WithFields(logrus.Fields{
			"day":   r.Today(),
			"limit": r.limit,
		}).Warn("Daily upstream request limit reached")
		return ErrRateLimitExceeded
	}
	return nil
}

// Used returns how many upstream calls were made today.
func (r *RateLimiter) Used(ctx context.Context) (int, error) {
	return r.store.Count(ctx, r.Today())
}
