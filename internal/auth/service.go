package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"vidora.org/internal/ids"
)

// Service orchestrates the credential and session-token flows over the user
// directory and the token issuer. It holds no mutable state of its own;
// concurrent requests only share the directory.
type Service struct {
	store  Store
	issuer *Issuer
}

// NewService constructs the authentication service.
func NewService(store Store, issuer *Issuer) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if issuer == nil {
		return nil, errors.New("auth: issuer is required")
	}
	return &Service{store: store, issuer: issuer}, nil
}

// Issuer exposes the token issuer, for cookie lifetimes at the HTTP layer.
func (s *Service) Issuer() *Issuer { return s.issuer }

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

// Register creates a new identity with a hashed password. Username and email
// are case-normalized before storage; duplicates fail with ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	username := normalize(in.Username)
	email := normalize(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := &Identity{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, directoryErr("create identity", err)
	}
	return identity, nil
}

// Login verifies credentials and opens a session: it issues a token pair and
// persists the refresh token as the identity's single live session value.
// Persistence is awaited; a directory failure surfaces instead of returning
// an unusable session.
func (s *Service) Login(ctx context.Context, identifier, password string) (*TokenPair, *Identity, error) {
	identifier = normalize(identifier)
	if identifier == "" || password == "" {
		return nil, nil, ErrMissingCredential
	}

	identity, err := s.store.FindByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, directoryErr("find identity", err)
	}

	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredential
	}

	pair, err := s.issuePair(identity)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.SetRefreshToken(ctx, identity.ID, pair.RefreshToken); err != nil {
		return nil, nil, directoryErr("persist refresh token", err)
	}
	return pair, identity, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token must
// be cryptographically valid, unexpired, and equal to the identity's stored
// value; the stored value is then atomically replaced so each refresh token
// is usable exactly once. A replayed token fails with ErrTokenReused even
// while its signature and expiry are still valid.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, *Identity, error) {
	if strings.TrimSpace(presented) == "" {
		return nil, nil, ErrUnauthorized
	}

	claims, err := s.issuer.VerifyRefreshToken(presented)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	identity, err := s.store.FindIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, directoryErr("find identity", err)
	}

	if identity.RefreshToken == "" || identity.RefreshToken != presented {
		return nil, nil, ErrTokenReused
	}

	pair, err := s.issuePair(identity)
	if err != nil {
		return nil, nil, err
	}
	swapped, err := s.store.RotateRefreshToken(ctx, identity.ID, presented, pair.RefreshToken)
	if err != nil {
		return nil, nil, directoryErr("rotate refresh token", err)
	}
	if !swapped {
		// A concurrent refresh or logout won the race since our read.
		return nil, nil, ErrTokenReused
	}
	return pair, identity, nil
}

// Authenticate validates an access token and resolves its identity. Every
// failure collapses to ErrUnauthorized: callers learn nothing about whether
// the token was absent, expired, tampered with, or orphaned.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.issuer.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	identity, err := s.store.FindIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, directoryErr("find identity", err)
	}
	return identity, nil
}

// Logout destroys the identity's session by clearing the stored refresh
// token. Any previously issued refresh token fails on its next use.
func (s *Service) Logout(ctx context.Context, identityID string) error {
	if err := s.store.ClearRefreshToken(ctx, identityID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return directoryErr("clear refresh token", err)
	}
	return nil
}

// ChangePassword verifies the old password and stores a hash of the new one.
func (s *Service) ChangePassword(ctx context.Context, identityID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return ErrMissingCredential
	}
	identity, err := s.store.FindIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return directoryErr("find identity", err)
	}
	if err := VerifyPassword(identity.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredential
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, identityID, hash); err != nil {
		return directoryErr("update password", err)
	}
	return nil
}

// UpdateAccount changes full name and/or email. The update never touches the
// password hash, so no re-hashing occurs on the way through.
func (s *Service) UpdateAccount(ctx context.Context, identityID, fullName, email string) (*Identity, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalize(email)
	if fullName == "" && email == "" {
		return nil, ErrInvalidInput
	}
	current, err := s.store.FindIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, directoryErr("find identity", err)
	}
	if fullName == "" {
		fullName = current.FullName
	}
	if email == "" {
		email = current.Email
	} else if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	updated, err := s.store.UpdateProfile(ctx, identityID, fullName, email)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, directoryErr("update profile", err)
	}
	return updated, nil
}

func (s *Service) issuePair(identity *Identity) (*TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.issuer.IssueRefreshToken(identity)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// normalize lower-cases and trims identifiers so lookups and uniqueness are
// case-insensitive.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// directoryErr tags a user-directory failure as Unavailable while keeping
// the cause in the chain for logs.
func directoryErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
