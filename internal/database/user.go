package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/promptduel/promptduel/internal/auth"
	"github.com/promptduel/promptduel/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username, points)
	      VALUES ($1, $2, $3, $4, $5)`

	err = pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username, user.Points,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, points
	FROM users
	WHERE email=$1
	`
	err := db.pool.QueryRow(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username, &u.Points,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindManyByIDs fetches a set of users in one round trip; used for lobby
// rosters, so the result set is at most two rows in practice.
func (db *DB) FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	q := `
	SELECT id, email, username, points
	FROM users
	WHERE id = ANY($1)
	`
	rows, err := db.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.Points); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// AddPoints increments a player's reward balance by delta.
func (db *DB) AddPoints(ctx context.Context, userID uuid.UUID, delta int) error {
	q := `UPDATE users SET points = points + $1 WHERE id = $2`
	return pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, delta, userID)
		return err
	})
}

// AuthenticateUser verifies credentials and mints a session JWT.
func (db *DB) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}

	return token, nil
}
