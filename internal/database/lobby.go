package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/promptduel/promptduel/internal/models"
)

// CreateLobby inserts the durable lobby row once both players are known and
// returns it with the assigned integer id.
func (db *DB) CreateLobby(ctx context.Context, player1ID, player2ID uuid.UUID, matchKey uuid.UUID) (*models.Lobby, error) {
	lobby := &models.Lobby{
		UUID:      matchKey,
		Player1ID: player1ID,
		Player2ID: player2ID,
		Status:    models.LobbyRowActive,
	}

	q := `
	INSERT INTO lobbies (uuid, player1_id, player2_id, status)
	VALUES ($1, $2, $3, $4)
	RETURNING id
	`
	err := pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, lobby.UUID, lobby.Player1ID, lobby.Player2ID, lobby.Status).Scan(&lobby.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert lobby: %w", err)
	}
	return lobby, nil
}

// FinishLobby records the round winner, marks the row finished, and
// credits the win points, all in one transaction. The status guard on
// the update makes the call idempotent: only the call that actually
// flips the row credits the winner, so a retried resolution cannot
// award twice. Returns whether this call performed the transition.
func (db *DB) FinishLobby(ctx context.Context, matchKey uuid.UUID, winnerID uuid.UUID, winPoints int) (bool, error) {
	q := `UPDATE lobbies SET winner_id=$1, status=$2 WHERE uuid=$3 AND status <> $2`
	var flipped bool
	err := pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, winnerID, models.LobbyRowFinished, matchKey)
		if err != nil {
			return err
		}
		flipped = tag.RowsAffected() > 0
		if !flipped {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE users SET points = points + $1 WHERE id = $2`, winPoints, winnerID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to finish lobby: %w", err)
	}
	return flipped, nil
}

// SetStatus updates the terminal status of a lobby row (e.g. aborted after
// exhausted retries).
func (db *DB) SetStatus(ctx context.Context, matchKey uuid.UUID, status string) error {
	q := `UPDATE lobbies SET status=$1 WHERE uuid=$2`
	return pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, status, matchKey)
		return err
	})
}
