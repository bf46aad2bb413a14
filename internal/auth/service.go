package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service orchestrates credential verification, attempt throttling, and
// token issuance. It holds no mutable shared state; all coordination goes
// through the stores.
type Service struct {
	accounts   AccountStore
	tokens     TokenStore
	throttle   *Throttle
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

func NewService(accounts AccountStore, tokens TokenStore, throttle *Throttle, jwtSecret string) *Service {
	return &Service{
		accounts:   accounts,
		tokens:     tokens,
		throttle:   throttle,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		bcryptCost: defaultBcryptCost,
	}
}

func (s *Service) WithSecurityConfig(bcryptCost int, accessTTL, refreshTTL time.Duration) {
	if bcryptCost > 0 {
		s.bcryptCost = bcryptCost
	}
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
}

// Login authenticates an identifier (username, email, or phone) against the
// stored hash. The throttle check gates the bcrypt comparison: a locked
// (origin, account) key is refused before any password work happens. A
// mismatch records exactly one failed attempt; a match clears the key.
func (s *Service) Login(ctx context.Context, identifier, password, origin string) (AuthResult, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))

	account, err := s.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResult{}, ErrUserNotFound
		}
		return AuthResult{}, err
	}

	key := strconv.FormatInt(account.ID, 10)
	if err := s.throttle.CheckAllowed(ctx, origin, key); err != nil {
		return AuthResult{}, err
	}

	if !VerifyPassword(password, account.PasswordHash) {
		if recErr := s.throttle.RecordFailure(ctx, origin, key); recErr != nil {
			return AuthResult{}, recErr
		}
		return AuthResult{}, ErrInvalidCredentials
	}

	if err := s.throttle.Clear(ctx, origin, key); err != nil {
		return AuthResult{}, err
	}

	tokens, err := s.issueTokens(ctx, account.ID)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{Account: account, Tokens: tokens}, nil
}

// Refresh rotates the refresh token and mints a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Tokens{}, ErrInvalidRefreshToken
	}

	newRefresh, err := randomToken(48)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate new refresh token: %w", err)
	}

	newExp := time.Now().UTC().Add(s.refreshTTL)
	accountID, err := s.tokens.RotateRefreshToken(ctx, refreshToken, newRefresh, newExp)
	if err != nil {
		return Tokens{}, err
	}

	access, expiresIn, err := s.issueAccessToken(accountID)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

// Me returns the account for an already-authenticated subject.
func (s *Service) Me(ctx context.Context, accountID int64) (Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrUserNotFound
		}
		return Account{}, err
	}

	return account, nil
}

func (s *Service) issueTokens(ctx context.Context, accountID int64) (Tokens, error) {
	access, expiresIn, err := s.issueAccessToken(accountID)
	if err != nil {
		return Tokens{}, err
	}

	refreshToken, err := randomToken(48)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.tokens.CreateRefreshToken(ctx, accountID, refreshToken, time.Now().UTC().Add(s.refreshTTL)); err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

func (s *Service) issueAccessToken(accountID int64) (string, int64, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(accountID, 10),
		"iat": now.Unix(),
		"exp": now.Add(s.accessTTL).Unix(),
		"typ": "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, int64(s.accessTTL.Seconds()), nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
