package models

import "github.com/google/uuid"

// Lobby is the durable (Postgres) record of a matched pair. The live round
// state lives in Redis under the matchmaking UUID; this row is created the
// moment a second player joins and receives the permanent integer id.
type Lobby struct {
	ID        int64      `json:"id"`
	UUID      uuid.UUID  `json:"uuid"`
	Player1ID uuid.UUID  `json:"player1Id"`
	Player2ID uuid.UUID  `json:"player2Id"`
	WinnerID  *uuid.UUID `json:"winnerId,omitempty"`
	Status    string     `json:"status"`
}

// Lobby terminal statuses persisted to the repository.
const (
	LobbyRowActive   = "active"
	LobbyRowFinished = "finished"
	LobbyRowAborted  = "aborted"
)
