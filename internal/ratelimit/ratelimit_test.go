package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_WindowResets(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	count, _, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, _, err = store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	current = current.Add(61 * time.Second)
	count, remaining, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, time.Minute, remaining)
}

func TestLimiter_MaxThreeInWindow(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return current }

	limiter := NewLimiter(store, map[string]Rule{
		"/api/analytics/stage-duration": {MaxRequests: 3, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "/api/analytics/stage-duration", "caller-1")
		assert.NoError(t, err)
	}

	retryAfter, err := limiter.Allow(ctx, "/api/analytics/stage-duration", "caller-1")
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Positive(t, retryAfter)

	// After the window elapses the counter resets.
	current = current.Add(61 * time.Second)
	_, err = limiter.Allow(ctx, "/api/analytics/stage-duration", "caller-1")
	assert.NoError(t, err)
}

func TestLimiter_IndependentPerCaller(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, map[string]Rule{"/r": {MaxRequests: 1, Window: time.Minute}})
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "/r", "caller-1")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "/r", "caller-1")
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = limiter.Allow(ctx, "/r", "caller-2")
	assert.NoError(t, err)
}

func TestLimiter_IndependentPerRoute(t *testing.T) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, map[string]Rule{
		"/strict":   {MaxRequests: 1, Window: time.Minute},
		"/generous": {MaxRequests: 100, Window: time.Minute},
	})
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "/strict", "c")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "/strict", "c")
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = limiter.Allow(ctx, "/generous", "c")
	assert.NoError(t, err)
}

func TestLimiter_DefaultRuleForUnknownRoute(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), nil)
	assert.Equal(t, DefaultRule, limiter.RuleFor("/unknown"))
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStore(mr.Addr())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	count, remaining, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, time.Minute, remaining)

	count, _, err = store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Expiry ends the window.
	mr.FastForward(61 * time.Second)
	count, _, err = store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedisStore_InvalidAddress(t *testing.T) {
	_, err := NewRedisStore("invalid:99999")
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, assert.AnError
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, nil)
	_, err := limiter.Allow(context.Background(), "/r", "c")
	assert.NoError(t, err)
}
