package game

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const timerPollInterval = 2 * time.Second

// TimerManager drives deadline-based round termination. Deadlines live in
// a shared sorted set so they survive process restarts; the poller sweeps
// expired entries and hands each one to the engine's end-of-round path.
// An in-process in-flight set keeps one sweep from firing a lobby twice
// while a slow termination is still running.
type TimerManager struct {
	rdb    *redis.Client
	log    *logrus.Logger
	expire func(ctx context.Context, lobbyID uuid.UUID) (over bool)

	// extension re-arms a fired deadline whose round is not over yet,
	// so a lobby stuck in an error phase is retried instead of dropped.
	extension time.Duration

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewTimerManager(rdb *redis.Client, log *logrus.Logger, extension time.Duration, expire func(context.Context, uuid.UUID) bool) *TimerManager {
	if extension == 0 {
		extension = 30 * time.Second
	}
	return &TimerManager{
		rdb:       rdb,
		log:       log,
		expire:    expire,
		extension: extension,
		inFlight:  make(map[uuid.UUID]struct{}),
	}
}

// Run polls the deadline index every two seconds until ctx is cancelled.
func (tm *TimerManager) Run(ctx context.Context) {
	ticker := time.NewTicker(timerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tm.sweep(ctx)
		}
	}
}

func (tm *TimerManager) sweep(ctx context.Context) {
	now := time.Now().UnixMilli()
	members, err := tm.rdb.ZRangeByScore(ctx, timersKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		tm.log.WithError(err).Warn("timer sweep failed")
		return
	}

	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			tm.log.WithField("member", m).Warn("dropping malformed timer entry")
			tm.rdb.ZRem(ctx, timersKey, m)
			continue
		}
		if !tm.claim(id) {
			continue
		}
		go tm.fire(ctx, id)
	}
}

func (tm *TimerManager) fire(ctx context.Context, id uuid.UUID) {
	defer tm.release(id)

	over := tm.expire(ctx, id)
	if over {
		if err := tm.rdb.ZRem(ctx, timersKey, id.String()).Err(); err != nil {
			tm.log.WithError(err).WithField("lobby_uuid", id).Warn("failed to clear fired timer")
		}
		return
	}

	// Round still open (termination mid-retry). Push the deadline out a
	// bounded step rather than re-firing on every sweep.
	next := time.Now().Add(tm.extension).UnixMilli()
	if err := tm.rdb.ZAdd(ctx, timersKey, redis.Z{Score: float64(next), Member: id.String()}).Err(); err != nil {
		tm.log.WithError(err).WithField("lobby_uuid", id).Warn("failed to extend timer")
	}
}

func (tm *TimerManager) claim(id uuid.UUID) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, busy := tm.inFlight[id]; busy {
		return false
	}
	tm.inFlight[id] = struct{}{}
	return true
}

func (tm *TimerManager) release(id uuid.UUID) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.inFlight, id)
}

// Clear removes a lobby's deadline from the index.
func (tm *TimerManager) Clear(ctx context.Context, id uuid.UUID) error {
	return tm.rdb.ZRem(ctx, timersKey, id.String()).Err()
}
