package auth

import "time"

// Account is a registered user. The password hash never leaves the service:
// it is excluded from JSON and only read by the credential check.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	IsPrivate    bool      `json:"is_private"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginAttempt is one failed password check, keyed by the caller's network
// origin and the account id in string form. Rows are deleted in bulk after a
// successful login and swept once they age past the retention window.
type LoginAttempt struct {
	ID        int64
	IP        string
	UserID    string
	CreatedAt time.Time
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthResult is what login and register hand back to the boundary.
type AuthResult struct {
	Account Account
	Tokens  Tokens
}

type RegisterParams struct {
	Username string
	Password string
	Email    string
	Phone    string
	FullName string
}
