package services

import (
	"context"
	"time"

	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CounterStore is the subset of Redis the rate limiter needs
type CounterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter implements a fixed window limit per email backed by Redis
type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
	logger *logging.SafeLogger
}

// NewRateLimiter creates a limiter allowing limit calls per window. A nil
// store or a non-positive limit disables it.
func NewRateLimiter(store CounterStore, limit int, window time.Duration, logger *logging.SafeLogger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{store: store, limit: limit, window: window, logger: logger}
}

// Enabled reports whether requests are actually counted
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.store != nil && rl.limit > 0
}

// Allow counts one call for key and returns ErrTooManyRequests once the
// window's limit is exceeded. Redis failures let the call through.
func (rl *RateLimiter) Allow(ctx context.Context, operation, key string) error {
	if !rl.Enabled() {
		return nil
	}

	redisKey := "ratelimit:" + operation + ":" + utils.NormalizeEmail(key)
	count, err := rl.store.Incr(ctx, redisKey).Result()
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request",
			zap.String("operation", operation),
			zap.Error(err))
		return nil
	}

	// first hit opens the window
	if count == 1 {
		if err := rl.store.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			rl.logger.Warn("failed to set rate limit window",
				zap.String("operation", operation),
				zap.Error(err))
		}
	}

	if count > int64(rl.limit) {
		observability.PassOperations.WithLabelValues(operation, "rate_limited").Inc()
		rl.logger.Warn("rate limiter rejected request",
			zap.String("operation", operation),
			zap.String("email", observability.MaskEmail(key)),
			zap.Int64("count", count),
			zap.Int("limit", rl.limit))
		return models.NewTooManyRequests("too many requests, try again later")
	}
	return nil
}
