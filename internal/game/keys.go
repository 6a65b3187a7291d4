package game

import "github.com/google/uuid"

// Redis key layout. The shared store is the sole owner of lobby and lock
// state across every connection handler process and the timer poller.
const (
	// waitingQueueKey is the FIFO list of lobby uuids awaiting a second
	// player. A lobby is listed only while its status is waiting.
	waitingQueueKey = "lobbies:waiting"

	// timersKey is the sorted set lobbyUuid -> round deadline (epoch ms).
	timersKey = "lobby:timers"
)

// Guarded phase transitions, used to namespace lock and attempt keys.
const (
	opStart = "start"
	opEnd   = "end"
)

func lobbyKey(id uuid.UUID) string {
	return "lobby:" + id.String()
}

func playerLobbyKey(userID uuid.UUID) string {
	return "player:" + userID.String() + ":lobby"
}

func lockKey(id uuid.UUID, op string) string {
	return "lobby:" + id.String() + ":lock:" + op
}

func attemptsKey(id uuid.UUID, op string) string {
	return "lobby:" + id.String() + ":attempts:" + op
}
