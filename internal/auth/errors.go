package auth

import "errors"

// Failure taxonomy of the authentication core. The HTTP layer maps these to
// wire statuses; TokenReused and InvalidToken are indistinguishable on the
// wire but stay distinct here so audit can record suspected replays.
var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrInvalidCredential = errors.New("auth: invalid credential")
	ErrNotFound          = errors.New("auth: not found")
	ErrAlreadyExists     = errors.New("auth: already exists")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrTokenReused       = errors.New("auth: refresh token reused")
	ErrUnauthorized      = errors.New("auth: unauthorized")
	ErrUnavailable       = errors.New("auth: directory unavailable")
	ErrInvalidInput      = errors.New("auth: invalid input")
)
