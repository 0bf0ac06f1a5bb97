package models

// User is a registered account. It doubles as the identity-provider
// record: its ID and display profile are what get frozen into role
// snapshots when the user appears in a transaction.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// DisplayName is shown in rosters and role snapshots.
	DisplayName string `json:"displayName"`

	// Email is unique and used for login and for adding members to groups.
	Email string `json:"email"`

	// PhotoURL is an optional avatar URL.
	PhotoURL string `json:"photoUrl,omitempty"`

	// PasswordHash is the bcrypt hash of the user's password. Never
	// serialized.
	PasswordHash string `json:"-"`

	// CreatedAt is the Unix timestamp in nanoseconds when the account was
	// created.
	CreatedAt int64 `json:"createdAt"`
}

// Member converts the user into a group roster entry.
func (u *User) Member() Member {
	return Member{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
	}
}
