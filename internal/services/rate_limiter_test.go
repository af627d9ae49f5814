package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounterStore struct {
	mu       sync.Mutex
	counts   map[string]int64
	expiries map[string]time.Duration
	err      error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: map[string]int64{}, expiries: map[string]time.Duration{}}
}

func (f *fakeCounterStore) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounterStore) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiries[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func TestRateLimiter_Allow(t *testing.T) {
	store := newFakeCounterStore()
	rl := NewRateLimiter(store, 3, time.Minute, logging.Logger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Allow(ctx, "check", "Asha@Example.com"))
	}

	err := rl.Allow(ctx, "check", "asha@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTooManyRequests))

	// another email has its own window
	assert.NoError(t, rl.Allow(ctx, "check", "ravi@example.com"))

	assert.Equal(t, time.Minute, store.expiries["ratelimit:check:asha@example.com"])
	assert.Len(t, store.expiries, 2)
}

func TestRateLimiter_Disabled(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		rl   *RateLimiter
	}{
		{name: "nil limiter", rl: nil},
		{name: "nil store", rl: NewRateLimiter(nil, 5, time.Minute, logging.Logger)},
		{name: "zero limit", rl: NewRateLimiter(newFakeCounterStore(), 0, time.Minute, logging.Logger)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.rl.Enabled())
			for i := 0; i < 10; i++ {
				assert.NoError(t, tt.rl.Allow(ctx, "check", "asha@example.com"))
			}
		})
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	store := newFakeCounterStore()
	store.err = errors.New("connection refused")
	rl := NewRateLimiter(store, 1, time.Minute, logging.Logger)

	for i := 0; i < 3; i++ {
		assert.NoError(t, rl.Allow(context.Background(), "check", "asha@example.com"))
	}
}

func TestNewRateLimiter_DefaultWindow(t *testing.T) {
	rl := NewRateLimiter(newFakeCounterStore(), 1, 0, logging.Logger)
	assert.Equal(t, time.Minute, rl.window)
}
