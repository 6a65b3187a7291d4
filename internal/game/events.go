package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/promptduel/promptduel/internal/models"
)

// Outbound event types pushed to connected players.
const (
	EventSearching       = "searching"
	EventJoined          = "joined"
	EventOpponentJoined  = "opponent_joined"
	EventRoundStarting   = "round_starting"
	EventRoundStarted    = "round_started"
	EventOpponentAnswer  = "opponent_answered"
	EventTyping          = "typing"
	EventGeneratingScore = "generating_result"
	EventRoundEnded      = "round_ended"
	EventTimer           = "timer"
	EventReconnectState  = "reconnect_state"
	EventError           = "error"
)

// Event is one server-to-client message. Ts is the server clock in epoch
// ms so clients can offset their countdowns against it.
type Event struct {
	Type    string      `json:"type"`
	Ts      int64       `json:"ts"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewEvent(typ string, payload interface{}) Event {
	return Event{Type: typ, Ts: time.Now().UnixMilli(), Payload: payload}
}

// PlayerInfo is the roster entry shared with both participants.
type PlayerInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Points   int       `json:"points"`
}

type JoinedPayload struct {
	LobbyUUID uuid.UUID    `json:"lobbyUuid"`
	Players   []PlayerInfo `json:"players"`
}

type RoundStartedPayload struct {
	Task  models.Task `json:"task"`
	EndAt int64       `json:"endAt"`
}

type OpponentPayload struct {
	UserID uuid.UUID `json:"userId"`
}

type RoundEndedPayload struct {
	WinnerID *uuid.UUID            `json:"winnerId,omitempty"`
	Prompt   string                `json:"prompt,omitempty"`
	Scores   []models.ScoredAnswer `json:"scores,omitempty"`
	Aborted  bool                  `json:"aborted,omitempty"`
}

type TimerPayload struct {
	EndAt int64 `json:"endAt"`
}

type TypingPayload struct {
	UserID   uuid.UUID `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LobbyView is the masked snapshot sent to a reconnecting player. The
// secret prompt is stripped and only the requesting player's own answer
// text is included.
type LobbyView struct {
	LobbyUUID        uuid.UUID    `json:"lobbyUuid"`
	Status           string       `json:"status"`
	Players          []PlayerInfo `json:"players"`
	Task             *models.Task `json:"task,omitempty"`
	YourAnswer       string       `json:"yourAnswer,omitempty"`
	OpponentAnswered bool         `json:"opponentAnswered"`
	EndAt            int64        `json:"endAt,omitempty"`
}
