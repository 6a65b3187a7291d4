package game

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewQueue(rdb)
}

func TestQueueFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, first)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, second)
}

func TestQueueEmptyDequeue(t *testing.T) {
	q := newTestQueue(t)
	id, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
}

func TestQueueRemoveIdempotent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	a := uuid.New()

	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Remove(ctx, a))
	require.NoError(t, q.Remove(ctx, a))

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
}
