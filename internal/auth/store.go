package auth

import (
	"context"
	"time"
)

// AccountStore is the durable lookup/insert surface for accounts. Not-found
// is reported as sql.ErrNoRows, matching the Postgres implementation.
type AccountStore interface {
	// FindByIdentifier resolves an account whose username, email, or phone
	// equals the identifier.
	FindByIdentifier(ctx context.Context, identifier string) (Account, error)

	// FindByAnyIdentifier returns at most one account colliding with the
	// given username, email, or phone. Empty email/phone are ignored.
	FindByAnyIdentifier(ctx context.Context, username, email, phone string) (Account, error)

	// FindByUsernames returns id+username projections for the usernames
	// that exist.
	FindByUsernames(ctx context.Context, usernames []string) ([]Account, error)

	FindByID(ctx context.Context, id int64) (Account, error)

	// Insert persists the account and its profile full name in one
	// transaction. Uniqueness clashes come back as UsernameTakenError,
	// ErrEmailTaken, or ErrPhoneTaken.
	Insert(ctx context.Context, account Account, fullName string) (Account, error)
}

// AttemptStore is the durable failed-login counter keyed by (origin,
// account id). Counting and inserting are deliberately independent; see
// Throttle.
type AttemptStore interface {
	CountAttempts(ctx context.Context, origin, accountID string) (int, error)
	InsertAttempt(ctx context.Context, origin, accountID string) error
	DeleteAttempts(ctx context.Context, origin, accountID string) error
	DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// TokenStore persists hashed refresh tokens.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, accountID int64, rawToken string, expiresAt time.Time) error

	// RotateRefreshToken atomically revokes the old token and stores the
	// new one, returning the account id the old token belonged to.
	RotateRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt time.Time) (int64, error)

	DeleteStaleRefreshTokens(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}
