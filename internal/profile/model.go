package profile

import "time"

// View is the externally visible shape of a profile. MemberSince and
// FullName are omitted for private accounts viewed by anyone but the owner.
type View struct {
	Username    string     `json:"username"`
	FullName    string     `json:"full_name,omitempty"`
	IsPrivate   bool       `json:"is_private"`
	MemberSince *time.Time `json:"member_since,omitempty"`
}

type Record struct {
	UserID    int64
	Username  string
	FullName  string
	IsPrivate bool
	CreatedAt time.Time
}

type UpdateInput struct {
	FullName  string `json:"full_name"`
	IsPrivate bool   `json:"is_private"`
}
