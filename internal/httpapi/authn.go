package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vidora.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/v1/users/register",
	"/api/v1/users/login",
	"/api/v1/users/refresh-token",
}

// withAuth is the request authenticator. It validates the access token on
// every protected request and attaches the resolved identity to the request
// context. Expired access tokens are not refreshed here; clients exchange
// their refresh token explicitly.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := accessTokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized request")
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "service unavailable")
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized request")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessTokenFromRequest takes the token from the accessToken cookie or the
// Authorization header, cookie first.
func accessTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(accessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
