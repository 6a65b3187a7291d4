package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/promptduel/promptduel/internal/models"
)

// BulkRecordAnswers stores the scored answers for a finished round in one
// transaction. Each player has at most one row per lobby; a retried
// resolution re-runs the insert, and the conflict clause keeps the rows
// from the first pass.
func (db *DB) BulkRecordAnswers(ctx context.Context, lobbyID int64, answers []models.ScoredAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	q := `
	INSERT INTO lobby_answers (lobby_id, user_id, answer, time, score)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (lobby_id, user_id) DO NOTHING
	`
	err := pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, a := range answers {
			if _, err := tx.Exec(ctx, q, lobbyID, a.UserID, a.Text, a.Time, a.Score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record answers: %w", err)
	}
	return nil
}
