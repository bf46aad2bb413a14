package auth

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccountStore struct {
	accounts []Account
	nextID   int64

	// allUsernamesTaken makes FindByUsernames report every queried
	// candidate as existing.
	allUsernamesTaken bool

	insertErr    error
	findErr      error
	lastFullName string
}

func (f *fakeAccountStore) FindByIdentifier(_ context.Context, identifier string) (Account, error) {
	if f.findErr != nil {
		return Account{}, f.findErr
	}
	for _, account := range f.accounts {
		if account.Username == identifier {
			return account, nil
		}
		if account.Email != nil && *account.Email == identifier {
			return account, nil
		}
		if account.Phone != nil && *account.Phone == identifier {
			return account, nil
		}
	}
	return Account{}, sql.ErrNoRows
}

func (f *fakeAccountStore) FindByAnyIdentifier(_ context.Context, username, email, phone string) (Account, error) {
	for _, account := range f.accounts {
		if account.Username == username {
			return account, nil
		}
		if email != "" && account.Email != nil && *account.Email == email {
			return account, nil
		}
		if phone != "" && account.Phone != nil && *account.Phone == phone {
			return account, nil
		}
	}
	return Account{}, sql.ErrNoRows
}

func (f *fakeAccountStore) FindByUsernames(_ context.Context, usernames []string) ([]Account, error) {
	found := make([]Account, 0)
	for _, username := range usernames {
		if f.allUsernamesTaken {
			found = append(found, Account{Username: username})
			continue
		}
		for _, account := range f.accounts {
			if account.Username == username {
				found = append(found, Account{ID: account.ID, Username: account.Username})
			}
		}
	}
	return found, nil
}

func (f *fakeAccountStore) FindByID(_ context.Context, id int64) (Account, error) {
	for _, account := range f.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return Account{}, sql.ErrNoRows
}

func (f *fakeAccountStore) Insert(_ context.Context, account Account, fullName string) (Account, error) {
	if f.insertErr != nil {
		return Account{}, f.insertErr
	}
	f.nextID++
	account.ID = f.nextID
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	f.accounts = append(f.accounts, account)
	f.lastFullName = fullName
	return account, nil
}

type fakeTokenStore struct {
	created   int
	createErr error

	rotateAccountID int64
	rotateErr       error
}

func (f *fakeTokenStore) CreateRefreshToken(context.Context, int64, string, time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created++
	return nil
}

func (f *fakeTokenStore) RotateRefreshToken(context.Context, string, string, time.Time) (int64, error) {
	if f.rotateErr != nil {
		return 0, f.rotateErr
	}
	return f.rotateAccountID, nil
}

func (f *fakeTokenStore) DeleteStaleRefreshTokens(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func mustHash(t *testing.T, plaintext string) string {
	t.Helper()
	digest, err := HashPassword(plaintext, bcrypt.MinCost)
	require.NoError(t, err)
	return digest
}

func newTestService(t *testing.T, accounts *fakeAccountStore, attempts *fakeAttemptStore, tokens *fakeTokenStore) *Service {
	t.Helper()
	service := NewService(accounts, tokens, NewThrottle(attempts, 5), "test-secret")
	service.WithSecurityConfig(bcrypt.MinCost, time.Minute, time.Hour)
	return service
}

func seedAccount(t *testing.T, accounts *fakeAccountStore, username, password, email string) Account {
	t.Helper()
	account := Account{
		ID:           int64(len(accounts.accounts) + 1),
		Username:     username,
		PasswordHash: mustHash(t, password),
	}
	if email != "" {
		account.Email = &email
	}
	accounts.accounts = append(accounts.accounts, account)
	accounts.nextID = account.ID
	return account
}

func TestLoginSuccessClearsAttemptsAndMintsTokens(t *testing.T) {
	accounts := &fakeAccountStore{}
	attempts := newFakeAttemptStore()
	tokens := &fakeTokenStore{}
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")

	key := strconv.FormatInt(account.ID, 10)
	attempts.counts[attemptKey("9.9.9.9", key)] = 3

	service := newTestService(t, accounts, attempts, tokens)
	result, err := service.Login(context.Background(), "alice", "secret1", "9.9.9.9")
	require.NoError(t, err)

	assert.Equal(t, account.ID, result.Account.ID)
	assert.Equal(t, "Bearer", result.Tokens.TokenType)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, 1, tokens.created)
	assert.Equal(t, 0, attempts.counts[attemptKey("9.9.9.9", key)])
}

func TestLoginAccessTokenCarriesSubject(t *testing.T) {
	accounts := &fakeAccountStore{}
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")

	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})
	result, err := service.Login(context.Background(), "alice", "secret1", "9.9.9.9")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(result.Tokens.AccessToken, claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(account.ID, 10), claims["sub"])
	assert.Equal(t, "access", claims["typ"])
}

func TestLoginResolvesAnyIdentifier(t *testing.T) {
	accounts := &fakeAccountStore{}
	phone := "+994123456789"
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	account.Phone = &phone
	accounts.accounts[0] = account

	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	for _, identifier := range []string{"alice", "ALICE", "a@x.com", "+994123456789"} {
		_, err := service.Login(context.Background(), identifier, "secret1", "9.9.9.9")
		assert.NoError(t, err, "identifier %q", identifier)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	accounts := &fakeAccountStore{}
	attempts := newFakeAttemptStore()
	service := newTestService(t, accounts, attempts, &fakeTokenStore{})

	_, err := service.Login(context.Background(), "ghost", "secret1", "9.9.9.9")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, attempts.counts)
}

func TestLoginWrongPasswordRecordsExactlyOneAttempt(t *testing.T) {
	accounts := &fakeAccountStore{}
	attempts := newFakeAttemptStore()
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")

	service := newTestService(t, accounts, attempts, &fakeTokenStore{})
	_, err := service.Login(context.Background(), "alice", "wrong-password", "9.9.9.9")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	key := strconv.FormatInt(account.ID, 10)
	assert.Equal(t, 1, attempts.counts[attemptKey("9.9.9.9", key)])
}

func TestLoginLockedRefusesBeforePasswordCheck(t *testing.T) {
	accounts := &fakeAccountStore{}
	attempts := newFakeAttemptStore()
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")

	key := strconv.FormatInt(account.ID, 10)
	attempts.counts[attemptKey("9.9.9.9", key)] = 5

	service := newTestService(t, accounts, attempts, &fakeTokenStore{})

	// Even the correct password is refused while locked, and the count
	// stays put: no attempt is recorded on a throttled call.
	_, err := service.Login(context.Background(), "alice", "secret1", "9.9.9.9")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, 5, attempts.counts[attemptKey("9.9.9.9", key)])

	// A different origin is unaffected.
	_, err = service.Login(context.Background(), "alice", "secret1", "8.8.8.8")
	assert.NoError(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	accounts := &fakeAccountStore{}
	seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	tokens := &fakeTokenStore{rotateAccountID: 1}

	service := newTestService(t, accounts, newFakeAttemptStore(), tokens)
	result, err := service.Refresh(context.Background(), "old-refresh-token")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
}

func TestRefreshRejectsEmptyAndInvalidTokens(t *testing.T) {
	tokens := &fakeTokenStore{rotateErr: ErrInvalidRefreshToken}
	service := newTestService(t, &fakeAccountStore{}, newFakeAttemptStore(), tokens)

	_, err := service.Refresh(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = service.Refresh(context.Background(), "revoked-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestMe(t *testing.T) {
	accounts := &fakeAccountStore{}
	account := seedAccount(t, accounts, "alice", "secret1", "a@x.com")
	service := newTestService(t, accounts, newFakeAttemptStore(), &fakeTokenStore{})

	got, err := service.Me(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = service.Me(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
