package httpapi

import (
	"net/http"
	"time"

	"vidora.org/internal/auth"
)

// setAuthCookies transports a freshly issued token pair. Both cookies are
// HttpOnly and Secure; lifetimes mirror the token TTLs.
func setAuthCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, authCookie(accessCookieName, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, authCookie(refreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt))
}

// clearAuthCookies expires both transport cookies.
func clearAuthCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	for _, name := range []string{accessCookieName, refreshCookieName} {
		c := authCookie(name, "", expired)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func authCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
