package database

import (
	"context"
	"fmt"
)

// schemaDDL is idempotent and applied at startup. Live round state never
// touches these tables; they hold accounts and finished-match history.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		username TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS lobbies (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE,
		player1_id UUID NOT NULL REFERENCES users(id),
		player2_id UUID NOT NULL REFERENCES users(id),
		winner_id UUID REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		lobby_id BIGINT NOT NULL UNIQUE REFERENCES lobbies(id),
		prompt TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS lobby_answers (
		id BIGSERIAL PRIMARY KEY,
		lobby_id BIGINT NOT NULL REFERENCES lobbies(id),
		user_id UUID NOT NULL REFERENCES users(id),
		answer TEXT NOT NULL,
		time BIGINT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (lobby_id, user_id)
	)`,
}

// EnsureSchema creates any missing tables.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := db.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
