package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateTask persists the secret prompt for a durable lobby at round start.
// The public payload (question, image) is never stored here; only the
// prompt is needed for scoring and audit. A retried round start
// regenerates the challenge, so the write upserts on lobby_id and the
// stored prompt always matches the one the players were shown.
func (db *DB) CreateTask(ctx context.Context, lobbyID int64, prompt string) error {
	q := `
	INSERT INTO tasks (lobby_id, prompt) VALUES ($1, $2)
	ON CONFLICT (lobby_id) DO UPDATE SET prompt = EXCLUDED.prompt
	`
	err := pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, lobbyID, prompt)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTaskPrompt returns the stored prompt for a durable lobby.
func (db *DB) GetTaskPrompt(ctx context.Context, lobbyID int64) (string, error) {
	var prompt string
	q := `SELECT prompt FROM tasks WHERE lobby_id = $1`
	if err := db.pool.QueryRow(ctx, q, lobbyID).Scan(&prompt); err != nil {
		return "", err
	}
	return prompt, nil
}
