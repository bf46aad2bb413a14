package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository implements AccountStore, AttemptStore, and TokenStore on
// Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, username, email, phone, password_hash, is_private, created_at, updated_at`

func scanAccount(row *sql.Row) (Account, error) {
	var account Account
	var email, phone sql.NullString
	err := row.Scan(
		&account.ID, &account.Username, &email, &phone,
		&account.PasswordHash, &account.IsPrivate,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	if email.Valid {
		account.Email = &email.String
	}
	if phone.Valid {
		account.Phone = &phone.String
	}

	return account, nil
}

func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM users
		WHERE username = $1 OR email = $1 OR phone = $1
		LIMIT 1
	`, identifier)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query user by identifier: %w", err)
	}

	return account, nil
}

func (r *Repository) FindByAnyIdentifier(ctx context.Context, username, email, phone string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM users
		WHERE username = $1
		   OR ($2 <> '' AND email = $2)
		   OR ($3 <> '' AND phone = $3)
		LIMIT 1
	`, username, email, phone)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query conflicting user: %w", err)
	}

	return account, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM users
		WHERE id = $1
	`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query user by id: %w", err)
	}

	return account, nil
}

// FindByUsernames returns id+username projections for the usernames that
// exist. Used only by the suggestion generator.
func (r *Repository) FindByUsernames(ctx context.Context, usernames []string) ([]Account, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(usernames))
	args := make([]any, len(usernames))
	for i, username := range usernames {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = username
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, username
		FROM users
		WHERE username IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("query users by usernames: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0, len(usernames))
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.ID, &account.Username); err != nil {
			return nil, fmt.Errorf("scan username row: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate username rows: %w", err)
	}

	return accounts, nil
}

// Insert persists the account and its profile in one transaction. Unique
// constraint violations are translated into the conflict taxonomy by
// constraint name, so a race lost after the conflict probe surfaces the
// same way a probed conflict does.
func (r *Repository) Insert(ctx context.Context, account Account, fullName string) (Account, error) {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, fmt.Errorf("begin insert user tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, email, phone, password_hash, is_private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, account.Username, account.Email, account.Phone, account.PasswordHash, account.IsPrivate, now).Scan(&account.ID)
	if err != nil {
		return Account{}, classifyInsertError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`, account.ID, fullName, now); err != nil {
		return Account{}, fmt.Errorf("insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("commit insert user tx: %w", err)
	}

	return account, nil
}

func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return &UsernameTakenError{}
		case "users_email_key":
			return ErrEmailTaken
		case "users_phone_key":
			return ErrPhoneTaken
		}
	}

	return fmt.Errorf("insert user: %w", err)
}

func (r *Repository) CountAttempts(ctx context.Context, origin, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM login_attempts
		WHERE ip = $1 AND user_id = $2
	`, origin, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count login attempts: %w", err)
	}

	return count, nil
}

func (r *Repository) InsertAttempt(ctx context.Context, origin, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (ip, user_id, created_at)
		VALUES ($1, $2, $3)
	`, origin, accountID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}

	return nil
}

func (r *Repository) DeleteAttempts(ctx context.Context, origin, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM login_attempts
		WHERE ip = $1 AND user_id = $2
	`, origin, accountID)
	if err != nil {
		return fmt.Errorf("delete login attempts: %w", err)
	}

	return nil
}

func (r *Repository) DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM login_attempts
			WHERE created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM login_attempts t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login attempts rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, accountID int64, rawToken string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), accountID, hashToken(rawToken), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *Repository) RotateRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt time.Time) (int64, error) {
	newID, err := uuid.NewV7()
	if err != nil {
		return 0, fmt.Errorf("generate new refresh token id: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback()

	var oldID string
	var accountID int64
	var expiresAt time.Time
	var revokedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, revoked_at
		FROM auth_refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, hashToken(rawOldToken)).Scan(&oldID, &accountID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidRefreshToken
		}
		return 0, fmt.Errorf("read refresh token: %w", err)
	}

	if revokedAt.Valid || now.After(expiresAt.UTC()) {
		return 0, ErrInvalidRefreshToken
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, newID.String(), accountID, hashToken(rawNewToken), newExpiresAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert rotated refresh token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $2, replaced_by = $3
		WHERE id = $1
	`, oldID, now, newID.String())
	if err != nil {
		return 0, fmt.Errorf("revoke old refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return accountID, nil
}

func (r *Repository) DeleteStaleRefreshTokens(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < NOW() OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func hashToken(rawToken string) string {
	hash := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(hash[:])
}
