package auth

import "context"

// Store is the user directory consumed by the authentication core. The core
// never owns durable storage; it issues reads and writes against this
// interface. Implementations map their own not-found/conflict conditions to
// ErrNotFound and ErrAlreadyExists.
type Store interface {
	// CreateIdentity inserts a new identity. Username and email must already
	// be case-normalized by the caller.
	CreateIdentity(ctx context.Context, identity *Identity) error

	// FindIdentity loads an identity by id, including the stored refresh
	// token.
	FindIdentity(ctx context.Context, id string) (*Identity, error)

	// FindByLogin loads an identity whose username or email equals the
	// case-normalized login.
	FindByLogin(ctx context.Context, login string) (*Identity, error)

	// UpdateProfile changes full name and email. The statement touches only
	// those columns: the password hash and stored refresh token are never
	// rewritten by an unrelated update.
	UpdateProfile(ctx context.Context, id, fullName, email string) (*Identity, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetRefreshToken stores token as the identity's single live refresh
	// token, overwriting any previous value.
	SetRefreshToken(ctx context.Context, id, token string) error

	// ClearRefreshToken removes the stored refresh token.
	ClearRefreshToken(ctx context.Context, id string) error

	// RotateRefreshToken atomically replaces the stored token with next, but
	// only while the stored value still equals presented. It reports whether
	// the swap happened; false means the presented token lost a rotation
	// race, was already rotated out, or was revoked.
	RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error)
}
