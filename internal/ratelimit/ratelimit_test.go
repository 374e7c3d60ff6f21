package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fauter/cochera-admin/internal/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucketDeniesAfterBurst(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "k", 0.1, 3)
		require.NoError(t, err)
		if !res.Allowed {
			t.Fatalf("attempt %d denied within burst", i+1)
		}
	}
	res, err := bucket.Allow(ctx, "k", 0.1, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := bucket.Allow(ctx, "other", 0.1, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestTokenBucketRefillsSlowRatesExactly(t *testing.T) {
	mr, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mr.SetTime(start)
	res, err := bucket.Allow(ctx, "slow", 0.1, 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	mr.SetTime(start.Add(4 * time.Second))
	res, err = bucket.Allow(ctx, "slow", 0.1, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 6*time.Second, res.RetryAfter)

	mr.SetTime(start.Add(10 * time.Second))
	res, err = bucket.Allow(ctx, "slow", 0.1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
	assert.Nil(t, NewTokenBucket(nil))
}

func TestLocalBucket(t *testing.T) {
	bucket := NewLocalBucket(time.Minute)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "k", 1, 2)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := bucket.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	now = now.Add(time.Second)
	res, err = bucket.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLockerExclusive(t *testing.T) {
	mr, client := newRedis(t)
	lockers := map[string]CellLocker{
		"redis": NewLocker(client),
		"local": NewLocalLocker(),
	}
	for name, l := range lockers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			token, ok, err := l.TryLock(ctx, "cell:a", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			_, ok, err = l.TryLock(ctx, "cell:a", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "second holder must be refused")

			_, ok, err = l.TryLock(ctx, "cell:b", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "unrelated keys stay available")

			require.NoError(t, l.Release(ctx, "cell:a", "someone-else"))
			_, ok, _ = l.TryLock(ctx, "cell:a", time.Minute)
			assert.False(t, ok, "release needs the owning token")

			require.NoError(t, l.Release(ctx, "cell:a", token))
			_, ok, err = l.TryLock(ctx, "cell:a", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}

	_, ok, err := lockers["redis"].TryLock(context.Background(), "cell:ttl", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)
	_, ok, err = lockers["redis"].TryLock(context.Background(), "cell:ttl", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired locks are reclaimed")
}

func TestEmployeeLoginLimiter(t *testing.T) {
	dash := config.DefaultDashboardConfig()
	dash.EmployeeLogin = config.LoginRateConfig{RatePerSecond: 0.01, Burst: 2}
	l := NewEmployeeLoginLimiter(NewLocalBucket(time.Minute), config.NewStaticDashboardConfig(dash), nil, zap.NewNop())
	ctx := context.Background()

	_, err := l.Allow(ctx, "ana")
	require.NoError(t, err)
	_, err = l.Allow(ctx, " ANA ")
	require.NoError(t, err)

	wait, err := l.Allow(ctx, "ana")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Greater(t, wait, time.Duration(0))

	_, err = l.Allow(ctx, "beto")
	assert.NoError(t, err, "limits are per username")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, float64, int) (*RateLimitResult, error) {
	return &RateLimitResult{}, errors.New("redis down")
}

func TestEmployeeLoginLimiterFailsOpen(t *testing.T) {
	l := NewEmployeeLoginLimiter(brokenLimiter{}, config.NewStaticDashboardConfig(config.DefaultDashboardConfig()), nil, zap.NewNop())
	_, err := l.Allow(context.Background(), "ana")
	assert.NoError(t, err)
}
