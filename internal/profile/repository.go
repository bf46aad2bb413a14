package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, p.full_name, u.is_private, u.created_at
		FROM users u
		JOIN profiles p ON p.user_id = u.id
		WHERE u.username = $1
	`, username).Scan(&rec.UserID, &rec.Username, &rec.FullName, &rec.IsPrivate, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("query profile by username: %w", err)
	}

	return rec, nil
}

// Update changes the profile's full name and the account's visibility flag
// together.
func (r *Repository) Update(ctx context.Context, userID int64, input UpdateInput) (Record, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin update profile tx: %w", err)
	}
	defer tx.Rollback()

	var rec Record
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET is_private = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, username, is_private, created_at
	`, userID, input.IsPrivate, now).Scan(&rec.UserID, &rec.Username, &rec.IsPrivate, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("update user visibility: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE profiles
		SET full_name = $2, updated_at = $3
		WHERE user_id = $1
		RETURNING full_name
	`, userID, input.FullName, now).Scan(&rec.FullName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("update profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit update profile tx: %w", err)
	}

	return rec, nil
}
