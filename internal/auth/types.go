package auth

import "time"

// User is a registered account. RefreshHash holds the sha256
// fingerprint of the currently valid refresh token, or "" when the
// account has no active session. At most one lineage per user.
type User struct {
	ID           string
	Name         string
	Organization string
	Email        string
	PasswordHash string
	RefreshHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public projection of a user.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Organization string    `json:"organization"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile strips credential material from a user record.
func (u *User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Name:         u.Name,
		Organization: u.Organization,
		Email:        u.Email,
		CreatedAt:    u.CreatedAt,
	}
}

// TokenPair carries freshly minted credentials and their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
