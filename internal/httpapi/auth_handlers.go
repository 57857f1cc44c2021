package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vidora.org/internal/audit"
	"vidora.org/internal/auth"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// identifier accepts either the canonical identifier field or the legacy
// username/email pair.
func (req loginRequest) identifier() string {
	for _, v := range []string{req.Identifier, req.Username, req.Email} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type tokenPairResponse struct {
	User         *auth.Profile `json:"user,omitempty"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, identity, err := a.auth.Login(r.Context(), req.identifier(), req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":  identity.ID,
		"username": identity.Username,
	})

	profile := identity.Profile()
	setAuthCookies(w, pair)
	writeSuccess(w, http.StatusOK, tokenPairResponse{
		User:         &profile,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "user logged in successfully")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	presented := refreshTokenFromRequest(r)
	pair, _, err := a.auth.Refresh(r.Context(), presented)
	if err != nil {
		if errors.Is(err, auth.ErrTokenReused) {
			// Possible replay or theft: record internally, answer generically.
			_ = audit.LogEvent(r.Context(), "auth.refresh.reuse_detected", nil)
		}
		writeAuthError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)

	setAuthCookies(w, pair)
	writeSuccess(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "access token refreshed")
}

// refreshTokenFromRequest takes the refresh token from the cookie or the
// request body, cookie first.
func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := a.auth.Logout(r.Context(), identity.ID); err != nil {
		writeAuthError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)

	clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{}, "user logged out")
}
