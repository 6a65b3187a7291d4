package game

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/promptduel/promptduel/internal/models"
)

// StateStore reads and writes per-lobby records in the shared store. Every
// mutation that must be all-or-nothing goes through one TxPipelined call
// so a half-created lobby is never visible to another process.
type StateStore struct {
	rdb      *redis.Client
	lobbyTTL time.Duration
}

func NewStateStore(rdb *redis.Client, lobbyTTL time.Duration) *StateStore {
	if lobbyTTL == 0 {
		lobbyTTL = 30 * time.Minute
	}
	return &StateStore{rdb: rdb, lobbyTTL: lobbyTTL}
}

// CreateLobby writes the lobby hash, enqueues it for matchmaking, and sets
// the creator's reverse index in a single atomic multi-op.
func (s *StateStore) CreateLobby(ctx context.Context, st *LobbyState) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := lobbyKey(st.UUID)
		pipe.HSet(ctx, key, st.toFields())
		pipe.Expire(ctx, key, s.lobbyTTL)
		pipe.RPush(ctx, waitingQueueKey, st.UUID.String())
		pipe.Set(ctx, playerLobbyKey(st.Player1), st.UUID.String(), s.lobbyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create lobby %s: %w", st.UUID, err)
	}
	return nil
}

// Get loads and validates the lobby record. Returns ErrLobbyNotFound when
// the keys have expired or been destroyed.
func (s *StateStore) Get(ctx context.Context, id uuid.UUID) (*LobbyState, error) {
	fields, err := s.rdb.HGetAll(ctx, lobbyKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get lobby %s: %w", id, err)
	}
	return parseLobbyState(id, fields)
}

// AttachPlayer2 fills the second seat: player2 + durable id + status flip
// to ready, reverse index for the joiner, and removal from the matchmaking
// queue, all in one multi-op so the join is announced only after it is
// fully visible.
func (s *StateStore) AttachPlayer2(ctx context.Context, id uuid.UUID, player2 uuid.UUID, dbID int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, lobbyKey(id),
			fieldPlayer2, player2.String(),
			fieldOnline2, "1",
			fieldDBID, strconv.FormatInt(dbID, 10),
			fieldStatus, strconv.Itoa(int(StatusReady)),
		)
		pipe.Set(ctx, playerLobbyKey(player2), id.String(), s.lobbyTTL)
		pipe.LRem(ctx, waitingQueueKey, 0, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("attach player2 to lobby %s: %w", id, err)
	}
	return nil
}

// SetStatus advances the state machine position.
func (s *StateStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if err := s.rdb.HSet(ctx, lobbyKey(id), fieldStatus, strconv.Itoa(int(status))).Err(); err != nil {
		return fmt.Errorf("set lobby %s status %s: %w", id, status, err)
	}
	return nil
}

// SetTask stores the challenge snapshot, secret prompt included. The
// prompt is stripped again before anything is sent to a client.
func (s *StateStore) SetTask(ctx context.Context, id uuid.UUID, task *models.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task for lobby %s: %w", id, err)
	}
	if err := s.rdb.HSet(ctx, lobbyKey(id), fieldTask, raw).Err(); err != nil {
		return fmt.Errorf("set lobby %s task: %w", id, err)
	}
	return nil
}

// PutAnswer writes an answer into its slot with set-if-absent semantics.
// Returns false when the slot was already filled, so a duplicate submit
// can never overwrite the first answer.
func (s *StateStore) PutAnswer(ctx context.Context, id uuid.UUID, slot int, ans *models.Answer) (bool, error) {
	field := fieldAnswer1
	if slot == 2 {
		field = fieldAnswer2
	}
	raw, err := json.Marshal(ans)
	if err != nil {
		return false, fmt.Errorf("marshal answer for lobby %s: %w", id, err)
	}

	// HSetNX alone is not enough: creation pre-seeds the field with "" so
	// parse validation can distinguish absent records. Overwrite only if
	// the current value is empty, checked and written atomically.
	const script = `
	local cur = redis.call('HGET', KEYS[1], ARGV[1])
	if cur == false or cur == '' then
		redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
		return 1
	end
	return 0
	`
	res, err := s.rdb.Eval(ctx, script, []string{lobbyKey(id)}, field, string(raw)).Int()
	if err != nil {
		return false, fmt.Errorf("put answer for lobby %s: %w", id, err)
	}
	return res == 1, nil
}

// SetOnline flips a participant's online flag.
func (s *StateStore) SetOnline(ctx context.Context, id uuid.UUID, slot int, online bool) error {
	field := fieldOnline1
	if slot == 2 {
		field = fieldOnline2
	}
	val := ""
	if online {
		val = "1"
	}
	if err := s.rdb.HSet(ctx, lobbyKey(id), field, val).Err(); err != nil {
		return fmt.Errorf("set lobby %s online%d: %w", id, slot, err)
	}
	return nil
}

// SetDeadline writes the round deadline into the hash and the timer index
// together.
func (s *StateStore) SetDeadline(ctx context.Context, id uuid.UUID, endAt int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, timersKey, redis.Z{Score: float64(endAt), Member: id.String()})
		pipe.HSet(ctx, lobbyKey(id), fieldEndAt, strconv.FormatInt(endAt, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("set lobby %s deadline: %w", id, err)
	}
	return nil
}

// ActiveLobbyOf resolves a player's reverse index entry. Returns uuid.Nil
// when the player has no active lobby.
func (s *StateStore) ActiveLobbyOf(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	raw, err := s.rdb.Get(ctx, playerLobbyKey(userID)).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("reverse index for %s: %w", userID, err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reverse index for %s: bad lobby id %q: %w", userID, raw, err)
	}
	return id, nil
}

// ClearReverseIndex drops a single player's reverse index entry.
func (s *StateStore) ClearReverseIndex(ctx context.Context, userID uuid.UUID) error {
	return s.rdb.Del(ctx, playerLobbyKey(userID)).Err()
}

// Destroy removes every key belonging to the lobby: the hash, queue entry,
// reverse indexes, timer index entry, and the phase locks and attempt
// counters. Idempotent.
func (s *StateStore) Destroy(ctx context.Context, st *LobbyState) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, lobbyKey(st.UUID))
		pipe.LRem(ctx, waitingQueueKey, 0, st.UUID.String())
		pipe.ZRem(ctx, timersKey, st.UUID.String())
		for _, p := range st.Players() {
			pipe.Del(ctx, playerLobbyKey(p))
		}
		for _, op := range []string{opStart, opEnd} {
			pipe.Del(ctx, lockKey(st.UUID, op))
			pipe.Del(ctx, attemptsKey(st.UUID, op))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("destroy lobby %s: %w", st.UUID, err)
	}
	return nil
}
