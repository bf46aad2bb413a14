package auth

import "errors"

var (
	// ErrInvalidInput covers business-invariant violations the boundary
	// cannot catch by shape alone, e.g. registering without email and phone.
	ErrInvalidInput = errors.New("either phone or email must be provided")

	// ErrUserNotFound and ErrInvalidCredentials stay distinct internally so
	// logs can tell them apart; the HTTP layer presents both the same way.
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTooManyAttempts = errors.New("too many login attempts")

	ErrEmailTaken = errors.New("email already exists")
	ErrPhoneTaken = errors.New("phone number already exists")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// UsernameTakenError carries alternative usernames that were free at
// generation time. Suggestions may hold fewer than two entries, or none.
type UsernameTakenError struct {
	Suggestions []string
}

func (e *UsernameTakenError) Error() string {
	return "username already exists"
}
