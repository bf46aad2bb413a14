package auth

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequiresEmailOrPhone(t *testing.T) {
	service := newTestService(t, &fakeAccountStore{}, newFakeAttemptStore(), &fakeTokenStore{})

	_, err := service.Register(context.Background(), RegisterParams{
		Username: "alice",
		Password: "secret1",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterSuccessHashesPasswordAndMintsTokens(t *testing.T) {
	accounts := &fakeAccountStore{}
	tokens := &fakeTokenStore{}
	service := newTestService(t, accounts, newFakeAttemptStore(), tokens)

	result, err := service.Register(context.Background(), RegisterParams{
		Username: "Alice",
		Password: "secret1",
		Email:    "A@X.com",
		FullName: "Alice Smith",
	})
	require.NoError(t, err)

	// Identifiers are normalized to lowercase.
	assert.Equal(t, "alice", result.Account.Username)
	require.NotNil(t, result.Account.Email)
	assert.Equal(t, "a@x.com", *result.Account.Email)

	// The stored secret is a hash that verifies, never the plaintext.
	stored := accounts.accounts[0]
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.True(t, VerifyPassword("secret1", stored.PasswordHash))

	assert.Equal(t, "Alice Smith", accounts.lastFullName)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.Equal(t, 1, tokens.created)
}

func TestRegisterThenLogin(t *testing.T) {
	accounts := &fakeAccountStore{}
	attempts := newFakeAttemptStore()
	service := newTestService(t, accounts, attempts, &fakeTokenStore{})

	_, err := service.Register(context.Background(), RegisterParams{
		Username: "alice",
		Password: "secret1",
		Email:    "a@x.com",
	})
	require.NoError(t, err)

	_, err = service.Login(context.Background(), "alice", "secret1", "1.2.3.4")
	assert.NoError(t, err)
}

func TestRegisterUsernameConflictReturnsSuggestions(t *testing.T) {
	accounts := &fakeAccountStore{}
	seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	_, err := service.Register(context.Background(), RegisterParams{
		Username: "alice",
		Password: "other-secret",
		Email:    "b@y.com",
	})

	var taken *UsernameTakenError
	require.ErrorAs(t, err, &taken)
	assert.LessOrEqual(t, len(taken.Suggestions), 2)

	pattern := regexp.MustCompile(`^alice\d{4}$`)
	for _, suggestion := range taken.Suggestions {
		assert.Regexp(t, pattern, suggestion)
		_, findErr := accounts.FindByIdentifier(context.Background(), suggestion)
		assert.Error(t, findErr, "suggestion %q must not collide with an existing username", suggestion)
	}
}

func TestRegisterSuggestionsShrinkWhenCandidatesTaken(t *testing.T) {
	accounts := &fakeAccountStore{allUsernamesTaken: true}
	seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	_, err := service.Register(context.Background(), RegisterParams{
		Username: "alice",
		Password: "other-secret",
		Email:    "b@y.com",
	})

	var taken *UsernameTakenError
	require.ErrorAs(t, err, &taken)
	assert.Empty(t, taken.Suggestions)
}

func TestRegisterEmailAndPhoneConflicts(t *testing.T) {
	accounts := &fakeAccountStore{}
	phone := "+994123456789"
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	account.Phone = &phone
	accounts.accounts[0] = account

	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	_, err := service.Register(context.Background(), RegisterParams{
		Username: "bob",
		Password: "secret1",
		Email:    "a@x.com",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = service.Register(context.Background(), RegisterParams{
		Username: "carol",
		Password: "secret1",
		Phone:    "+994123456789",
	})
	assert.ErrorIs(t, err, ErrPhoneTaken)
}

func TestRegisterUsernameConflictWinsOverEmail(t *testing.T) {
	accounts := &fakeAccountStore{}
	seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	// The conflicting record matches both username and email; the username
	// branch takes priority.
	_, err := service.Register(context.Background(), RegisterParams{
		Username: "alice",
		Password: "secret1",
		Email:    "a@x.com",
	})

	var taken *UsernameTakenError
	assert.ErrorAs(t, err, &taken)
}

func TestRegisterRaceLostAtInsertGetsSuggestions(t *testing.T) {
	accounts := &fakeAccountStore{insertErr: &UsernameTakenError{}}
	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	// The probe sees no conflict, but the store's unique constraint fires
	// at insert time; the error surfaces with suggestions attached.
	_, err := service.Register(context.Background(), RegisterParams{
		Username: "alice",
		Password: "secret1",
		Email:    "a@x.com",
	})

	var taken *UsernameTakenError
	require.ErrorAs(t, err, &taken)
	assert.LessOrEqual(t, len(taken.Suggestions), 2)
}
