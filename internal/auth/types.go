package auth

import "time"

// Identity is a persisted user account. Username and email are stored
// case-normalized and are unique. RefreshToken holds the single live refresh
// token for the account, or the empty string when no session exists; issuing
// a new token overwrites it, never appends.
type Identity struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the outward projection of an Identity. It never carries the
// password hash or the stored refresh token.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile returns the sanitized projection of the identity.
func (i *Identity) Profile() Profile {
	return Profile{
		ID:        i.ID,
		Username:  i.Username,
		Email:     i.Email,
		FullName:  i.FullName,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// TokenPair bundles a freshly issued access and refresh token with their
// expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
