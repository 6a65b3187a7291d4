// internal/game/state.go
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/promptduel/promptduel/internal/models"
)

// Status is the lobby state machine position. It only ever advances along
// the mainline; the two error states are re-entry points for retries.
type Status int

const (
	StatusWaiting Status = iota
	StatusReady
	StatusGenerateTask
	StatusStarted
	StatusGenerateResult
	StatusFinished
	StatusErrorStartGame
	StatusErrorEndGame
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusReady:
		return "ready"
	case StatusGenerateTask:
		return "generate_task"
	case StatusStarted:
		return "started"
	case StatusGenerateResult:
		return "generate_result"
	case StatusFinished:
		return "finished"
	case StatusErrorStartGame:
		return "error_start_game"
	case StatusErrorEndGame:
		return "error_end_game"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Sentinel errors for input-rejection cases; the socket layer maps these
// to rejection events without any state change.
var (
	ErrLobbyNotFound   = errors.New("lobby not found")
	ErrLobbyFull       = errors.New("lobby already has two players")
	ErrNotParticipant  = errors.New("player is not part of this lobby")
	ErrRoundNotStarted = errors.New("round is not in progress")
	ErrRoundClosed     = errors.New("round deadline has passed")
	ErrAlreadyAnswered = errors.New("player already submitted an answer")
)

// Redis hash fields of a lobby record.
const (
	fieldPlayer1 = "player1"
	fieldPlayer2 = "player2"
	fieldOnline1 = "online1"
	fieldOnline2 = "online2"
	fieldDBID    = "dbId"
	fieldStatus  = "status"
	fieldTask    = "task"
	fieldAnswer1 = "answer1"
	fieldAnswer2 = "answer2"
	fieldEndAt   = "endAt"
)

// LobbyState is the authoritative per-lobby record, stored as a Redis hash
// keyed by the matchmaking UUID. No component caches it beyond a single
// operation.
type LobbyState struct {
	UUID    uuid.UUID
	Player1 uuid.UUID
	Player2 uuid.UUID // uuid.Nil until a second player joins
	Online1 bool
	Online2 bool
	DBID    int64 // durable repository id, 0 until persisted
	Status  Status
	Task    *models.Task
	Answer1 *models.Answer
	Answer2 *models.Answer
	EndAt   int64 // round deadline, epoch ms; 0 outside a round
}

// Players returns the known participant ids, one or two entries.
func (s *LobbyState) Players() []uuid.UUID {
	ids := []uuid.UUID{s.Player1}
	if s.Player2 != uuid.Nil {
		ids = append(ids, s.Player2)
	}
	return ids
}

// HasPlayer reports whether id is one of the participants.
func (s *LobbyState) HasPlayer(id uuid.UUID) bool {
	return id == s.Player1 || (s.Player2 != uuid.Nil && id == s.Player2)
}

// Slot maps a participant to their answer slot (1 or 2), or 0 for
// non-participants.
func (s *LobbyState) Slot(id uuid.UUID) int {
	switch {
	case id == s.Player1:
		return 1
	case s.Player2 != uuid.Nil && id == s.Player2:
		return 2
	}
	return 0
}

// AnswerInSlot returns the stored answer for slot 1 or 2, or nil.
func (s *LobbyState) AnswerInSlot(slot int) *models.Answer {
	if slot == 1 {
		return s.Answer1
	}
	if slot == 2 {
		return s.Answer2
	}
	return nil
}

// Answers returns the submitted answers in slot order.
func (s *LobbyState) Answers() []models.Answer {
	var out []models.Answer
	if s.Answer1 != nil {
		out = append(out, *s.Answer1)
	}
	if s.Answer2 != nil {
		out = append(out, *s.Answer2)
	}
	return out
}

// BothAnswered reports whether both slots are filled.
func (s *LobbyState) BothAnswered() bool {
	return s.Answer1 != nil && s.Answer2 != nil
}

// toFields serializes the state into the hash representation used at
// lobby creation. Later mutations write individual fields.
func (s *LobbyState) toFields() map[string]interface{} {
	return map[string]interface{}{
		fieldPlayer1: s.Player1.String(),
		fieldPlayer2: "",
		fieldOnline1: "1",
		fieldOnline2: "",
		fieldDBID:    "0",
		fieldStatus:  strconv.Itoa(int(s.Status)),
		fieldAnswer1: "",
		fieldAnswer2: "",
		fieldEndAt:   "0",
	}
}

// parseLobbyState validates and decodes a Redis hash into a LobbyState.
// Field presence is checked rather than trusted: a half-written record is
// an error, not a zero value.
func parseLobbyState(id uuid.UUID, fields map[string]string) (*LobbyState, error) {
	if len(fields) == 0 {
		return nil, ErrLobbyNotFound
	}

	st := &LobbyState{UUID: id}

	p1, err := uuid.Parse(fields[fieldPlayer1])
	if err != nil {
		return nil, fmt.Errorf("lobby %s: bad player1 field: %w", id, err)
	}
	st.Player1 = p1

	if raw := fields[fieldPlayer2]; raw != "" {
		p2, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("lobby %s: bad player2 field: %w", id, err)
		}
		st.Player2 = p2
	}

	st.Online1 = fields[fieldOnline1] == "1"
	st.Online2 = fields[fieldOnline2] == "1"

	statusRaw, ok := fields[fieldStatus]
	if !ok {
		return nil, fmt.Errorf("lobby %s: missing status field", id)
	}
	statusInt, err := strconv.Atoi(statusRaw)
	if err != nil {
		return nil, fmt.Errorf("lobby %s: bad status field: %w", id, err)
	}
	st.Status = Status(statusInt)

	if raw := fields[fieldDBID]; raw != "" {
		dbID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lobby %s: bad dbId field: %w", id, err)
		}
		st.DBID = dbID
	}

	if raw := fields[fieldTask]; raw != "" {
		var task models.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("lobby %s: bad task field: %w", id, err)
		}
		st.Task = &task
	}

	for slot, field := range map[int]string{1: fieldAnswer1, 2: fieldAnswer2} {
		raw := fields[field]
		if raw == "" {
			continue
		}
		var ans models.Answer
		if err := json.Unmarshal([]byte(raw), &ans); err != nil {
			return nil, fmt.Errorf("lobby %s: bad answer%d field: %w", id, slot, err)
		}
		if slot == 1 {
			st.Answer1 = &ans
		} else {
			st.Answer2 = &ans
		}
	}

	if raw := fields[fieldEndAt]; raw != "" {
		endAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lobby %s: bad endAt field: %w", id, err)
		}
		st.EndAt = endAt
	}

	return st, nil
}
