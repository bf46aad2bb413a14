package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	suggestionCandidates = 5
	suggestionLimit      = 2
)

// Register creates an account after checking all three identifiers for
// conflicts. Username and email are lowercased; phone arrives pre-validated
// as +digits from the boundary. The password is hashed here, explicitly,
// right before the insert; there is no save hook that could skip it.
func (s *Service) Register(ctx context.Context, params RegisterParams) (AuthResult, error) {
	if params.Email == "" && params.Phone == "" {
		return AuthResult{}, ErrInvalidInput
	}

	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	phone := strings.TrimSpace(params.Phone)

	existing, err := s.accounts.FindByAnyIdentifier(ctx, username, email, phone)
	if err == nil {
		return AuthResult{}, s.classifyConflict(ctx, existing, username, email)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return AuthResult{}, err
	}

	hash, err := HashPassword(params.Password, s.bcryptCost)
	if err != nil {
		return AuthResult{}, err
	}

	account := Account{
		Username:     username,
		PasswordHash: hash,
	}
	if email != "" {
		account.Email = &email
	}
	if phone != "" {
		account.Phone = &phone
	}

	created, err := s.accounts.Insert(ctx, account, strings.TrimSpace(params.FullName))
	if err != nil {
		// Unique constraints catch the race between the conflict probe and
		// the insert; surface it exactly like a probed conflict.
		var taken *UsernameTakenError
		if errors.As(err, &taken) && len(taken.Suggestions) == 0 {
			taken.Suggestions = s.usernameSuggestions(ctx, username)
		}
		return AuthResult{}, err
	}

	tokens, err := s.issueTokens(ctx, created.ID)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{Account: created, Tokens: tokens}, nil
}

func (s *Service) classifyConflict(ctx context.Context, existing Account, username, email string) error {
	switch {
	case existing.Username == username:
		return &UsernameTakenError{Suggestions: s.usernameSuggestions(ctx, username)}
	case email != "" && existing.Email != nil && *existing.Email == email:
		return ErrEmailTaken
	default:
		return ErrPhoneTaken
	}
}

// usernameSuggestions generates five candidates of the form
// {username}{1000..9999}, drops the ones already taken, and returns at most
// two. It never loops to fill the quota: fewer free candidates mean fewer
// suggestions. A store error just means no suggestions.
func (s *Service) usernameSuggestions(ctx context.Context, username string) []string {
	candidates := make([]string, 0, suggestionCandidates)
	for range suggestionCandidates {
		candidates = append(candidates, fmt.Sprintf("%s%d", username, 1000+rand.IntN(9000)))
	}

	existing, err := s.accounts.FindByUsernames(ctx, candidates)
	if err != nil {
		return nil
	}

	taken := make(map[string]bool, len(existing))
	for _, account := range existing {
		taken[account.Username] = true
	}

	available := make([]string, 0, suggestionLimit)
	for _, candidate := range candidates {
		if taken[candidate] {
			continue
		}
		available = append(available, candidate)
		if len(available) == suggestionLimit {
			break
		}
	}

	return available
}
