// internal/store/lock.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default windows for phase-transition locks. The lock TTL covers a single
// transition and self-heals if the holder crashes; the attempts TTL bounds
// how long a lobby keeps retrying a failing transition across processes.
const (
	DefaultLockTTL     = 5 * time.Second
	DefaultAttemptsTTL = 300 * time.Second
)

// GuardedAttempt describes one lock-protected, attempt-capped execution of
// an operation. LockKey serializes executors; AttemptsKey counts executions
// of the guarded body independently of lock renewal.
type GuardedAttempt struct {
	LockKey     string
	AttemptsKey string
	MaxAttempts int

	// OnMaxAttemptsReached runs (under the lock) when the attempt budget is
	// exhausted; the guarded body is not executed.
	OnMaxAttemptsReached func(ctx context.Context) error

	// OnLockBusy runs when another executor holds the lock. Contention is
	// not a failure and does not consume an attempt.
	OnLockBusy func()

	LockTTL     time.Duration
	AttemptsTTL time.Duration
}

// Acquire takes the lock with set-if-absent semantics and checks the
// attempt budget. It returns true when the caller may run the guarded
// body; only then must the caller Release the lock. On every other
// outcome Acquire drops the lock itself so the next executor does not
// wait out the TTL.
func (g *GuardedAttempt) Acquire(ctx context.Context, rdb *redis.Client) (bool, error) {
	lockTTL := g.LockTTL
	if lockTTL == 0 {
		lockTTL = DefaultLockTTL
	}
	attemptsTTL := g.AttemptsTTL
	if attemptsTTL == 0 {
		attemptsTTL = DefaultAttemptsTTL
	}

	ok, err := rdb.SetNX(ctx, g.LockKey, "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", g.LockKey, err)
	}
	if !ok {
		if g.OnLockBusy != nil {
			g.OnLockBusy()
		}
		return false, nil
	}

	attempts, err := rdb.Get(ctx, g.AttemptsKey).Int()
	if err != nil && err != redis.Nil {
		g.Release(ctx, rdb)
		return false, fmt.Errorf("read attempts %s: %w", g.AttemptsKey, err)
	}

	if attempts >= g.MaxAttempts {
		defer g.Release(ctx, rdb)
		if g.OnMaxAttemptsReached != nil {
			if cbErr := g.OnMaxAttemptsReached(ctx); cbErr != nil {
				return false, cbErr
			}
		}
		return false, nil
	}

	if err := rdb.Set(ctx, g.AttemptsKey, attempts+1, attemptsTTL).Err(); err != nil {
		g.Release(ctx, rdb)
		return false, fmt.Errorf("bump attempts %s: %w", g.AttemptsKey, err)
	}
	return true, nil
}

// Release drops the lock key so the next executor can proceed without
// waiting out the TTL.
func (g *GuardedAttempt) Release(ctx context.Context, rdb *redis.Client) {
	rdb.Del(ctx, g.LockKey)
}

// ClearAttempts resets the attempt counter, used once a transition finally
// succeeds so a later retryable phase starts with a fresh budget.
func (g *GuardedAttempt) ClearAttempts(ctx context.Context, rdb *redis.Client) {
	rdb.Del(ctx, g.AttemptsKey)
}
