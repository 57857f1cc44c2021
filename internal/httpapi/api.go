// Package httpapi is the route layer of the service: it binds the
// authentication flows to REST endpoints, applies the request authenticator
// as middleware, and speaks the uniform response envelope.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"vidora.org/internal/auth"
	"vidora.org/internal/obs"
)

// ReadyProbe checks downstream readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	readyProbe ReadyProbe
	version    string

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

// New wires the route table. Throttling knobs can be adjusted on the returned
// API before Handler is called.
func New(authSvc *auth.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         authSvc,
		readyProbe:   rp,
		version:      version,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 16 << 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/v1/users/register", a.handleRegister)
	a.mux.HandleFunc("/api/v1/users/login", a.handleLogin)
	a.mux.HandleFunc("/api/v1/users/refresh-token", a.handleRefreshToken)
	a.mux.HandleFunc("/api/v1/users/logout", a.handleLogout)
	a.mux.HandleFunc("/api/v1/users/current-user", a.handleCurrentUser)
	a.mux.HandleFunc("/api/v1/users/change-password", a.handleChangePassword)
	a.mux.HandleFunc("/api/v1/users/update-account", a.handleUpdateAccount)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetLimits overrides the throttling defaults. Must be called before Handler.
func (a *API) SetLimits(rateBurst, ratePerSec int, maxBodyBytes int64) {
	if rateBurst > 0 {
		a.rateBurst = rateBurst
	}
	if ratePerSec > 0 {
		a.ratePerSec = ratePerSec
	}
	if maxBodyBytes > 0 {
		a.maxBodyBytes = maxBodyBytes
	}
}

// Handler returns the full middleware chain around the route table.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vidora-api",
		"version": a.version,
	}, "ok")
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	obs.SetReady(true)
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ready"}, "ready")
}
