package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenConfig carries the parameters of token issuance. It is loaded once at
// startup and injected; secrets are never read from process-wide state after
// construction.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
	Issuer        string
}

// Claims are the JWT claims minted by the Issuer. Access tokens carry the
// denormalized profile fields; refresh tokens carry only the subject.
type Claims struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"fullName,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the two token classes. Access and refresh tokens
// are signed with independent secrets so compromise of one class does not
// allow forging the other.
type Issuer struct {
	cfg TokenConfig
	now func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer validates the configuration and constructs an Issuer. Every
// field is independently required; a missing secret or non-positive TTL is a
// deterministic construction failure, not a silent default.
func NewIssuer(cfg TokenConfig, opts ...IssuerOption) (*Issuer, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, errors.New("auth: access token secret is required")
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("auth: refresh token secret is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("auth: access token ttl must be positive")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: refresh token ttl must be positive")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("auth: token issuer name is required")
	}
	iss := &Issuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// IssueAccessToken mints a short-lived access token embedding the identity's
// id and denormalized profile claims.
func (i *Issuer) IssueAccessToken(identity *Identity) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.cfg.AccessTTL)
	claims := Claims{
		Username:  identity.Username,
		Email:     identity.Email,
		FullName:  identity.FullName,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.AccessSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken mints a long-lived refresh token carrying only the
// identity id.
func (i *Issuer) IssueRefreshToken(identity *Identity) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.cfg.RefreshTTL)
	claims := Claims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.RefreshSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature, expiry, issuer and token class against
// the access secret. Expired and malformed tokens fail identically: the
// distinction is not leaked to callers.
func (i *Issuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.verify(token, tokenTypeAccess, []byte(i.cfg.AccessSecret))
}

// VerifyRefreshToken checks signature, expiry, issuer and token class against
// the refresh secret. Equality with the stored session value is the caller's
// responsibility; a verified refresh token alone does not grant anything.
func (i *Issuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.verify(token, tokenTypeRefresh, []byte(i.cfg.RefreshSecret))
}

func (i *Issuer) verify(token, wantType string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
