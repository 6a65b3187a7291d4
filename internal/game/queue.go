package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is the FIFO matchmaking queue of lobbies awaiting a second player.
// FIFO over random selection: fair, and pop is O(1) with no scanning.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue appends a waiting lobby to the tail.
func (q *Queue) Enqueue(ctx context.Context, lobbyID uuid.UUID) error {
	if err := q.rdb.RPush(ctx, waitingQueueKey, lobbyID.String()).Err(); err != nil {
		return fmt.Errorf("enqueue lobby %s: %w", lobbyID, err)
	}
	return nil
}

// Dequeue pops the head lobby, non-blocking. LPOP is atomic, so the same
// lobby is never handed to two callers. Returns uuid.Nil when empty.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	raw, err := q.rdb.LPop(ctx, waitingQueueKey).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("dequeue: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("dequeue: bad lobby id %q: %w", raw, err)
	}
	return id, nil
}

// Remove deletes every occurrence of the lobby from the queue. Idempotent.
func (q *Queue) Remove(ctx context.Context, lobbyID uuid.UUID) error {
	if err := q.rdb.LRem(ctx, waitingQueueKey, 0, lobbyID.String()).Err(); err != nil {
		return fmt.Errorf("remove lobby %s from queue: %w", lobbyID, err)
	}
	return nil
}
