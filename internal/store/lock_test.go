package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance and a redis client for testing.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestGuardedAttemptAcquireAndRelease(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	ctx := context.Background()

	g := &GuardedAttempt{
		LockKey:     "lobby:abc:lock:end",
		AttemptsKey: "lobby:abc:attempts:end",
		MaxAttempts: 3,
	}

	granted, err := g.Acquire(ctx, rdb)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.True(t, mr.Exists(g.LockKey))

	attempts, err := rdb.Get(ctx, g.AttemptsKey).Int()
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	g.Release(ctx, rdb)
	assert.False(t, mr.Exists(g.LockKey))
}

func TestGuardedAttemptLockBusy(t *testing.T) {
	_, rdb := setupTestRedis(t)
	ctx := context.Background()

	busyCalled := false
	g := &GuardedAttempt{
		LockKey:     "lobby:abc:lock:start",
		AttemptsKey: "lobby:abc:attempts:start",
		MaxAttempts: 3,
		OnLockBusy:  func() { busyCalled = true },
	}

	// Another executor already holds the lock.
	require.NoError(t, rdb.Set(ctx, g.LockKey, "1", time.Minute).Err())

	granted, err := g.Acquire(ctx, rdb)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.True(t, busyCalled)

	// Contention must not consume an attempt.
	err = rdb.Get(ctx, g.AttemptsKey).Err()
	assert.Equal(t, redis.Nil, err)
}

func TestGuardedAttemptMaxAttemptsReached(t *testing.T) {
	_, rdb := setupTestRedis(t)
	ctx := context.Background()

	escalated := false
	g := &GuardedAttempt{
		LockKey:     "lobby:abc:lock:end",
		AttemptsKey: "lobby:abc:attempts:end",
		MaxAttempts: 3,
		OnMaxAttemptsReached: func(ctx context.Context) error {
			escalated = true
			return nil
		},
	}

	for i := 0; i < 3; i++ {
		granted, err := g.Acquire(ctx, rdb)
		require.NoError(t, err)
		require.True(t, granted, "attempt %d should be granted", i+1)
		g.Release(ctx, rdb)
	}
	assert.False(t, escalated)

	// Fourth call: budget exhausted, guarded body must not run.
	granted, err := g.Acquire(ctx, rdb)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.True(t, escalated)
}

func TestGuardedAttemptReleasesLockOnDeniedOutcomes(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	ctx := context.Background()

	g := &GuardedAttempt{
		LockKey:     "lobby:abc:lock:end",
		AttemptsKey: "lobby:abc:attempts:end",
		MaxAttempts: 1,
		OnMaxAttemptsReached: func(ctx context.Context) error {
			return nil
		},
	}

	// Unreadable counter: Acquire must fail without leaving the lock
	// held for the full TTL.
	require.NoError(t, rdb.Set(ctx, g.AttemptsKey, "not-a-number", time.Minute).Err())
	granted, err := g.Acquire(ctx, rdb)
	require.Error(t, err)
	assert.False(t, granted)
	assert.False(t, mr.Exists(g.LockKey))

	// Exhausted budget: same, the next executor must not have to wait.
	require.NoError(t, rdb.Set(ctx, g.AttemptsKey, "1", time.Minute).Err())
	granted, err = g.Acquire(ctx, rdb)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.False(t, mr.Exists(g.LockKey))
}

func TestGuardedAttemptClearAttempts(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	ctx := context.Background()

	g := &GuardedAttempt{
		LockKey:     "lobby:abc:lock:start",
		AttemptsKey: "lobby:abc:attempts:start",
		MaxAttempts: 1,
	}

	granted, err := g.Acquire(ctx, rdb)
	require.NoError(t, err)
	require.True(t, granted)
	g.Release(ctx, rdb)

	g.ClearAttempts(ctx, rdb)
	assert.False(t, mr.Exists(g.AttemptsKey))

	granted, err = g.Acquire(ctx, rdb)
	require.NoError(t, err)
	assert.True(t, granted, "budget should be fresh after clear")
}
