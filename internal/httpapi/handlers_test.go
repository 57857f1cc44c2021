package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vidora.org/internal/auth"
)

// fakeDirectory is an in-memory Store for exercising the HTTP layer without
// a database.
type fakeDirectory struct {
	mu   sync.Mutex
	byID map[string]*auth.Identity
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byID: make(map[string]*auth.Identity)}
}

func (d *fakeDirectory) CreateIdentity(_ context.Context, identity *auth.Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.byID {
		if existing.Username == identity.Username || existing.Email == identity.Email {
			return auth.ErrAlreadyExists
		}
	}
	cp := *identity
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	d.byID[cp.ID] = &cp
	identity.CreatedAt = cp.CreatedAt
	identity.UpdatedAt = cp.UpdatedAt
	return nil
}

func (d *fakeDirectory) FindIdentity(_ context.Context, id string) (*auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (d *fakeDirectory) FindByLogin(_ context.Context, login string) (*auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, identity := range d.byID {
		if identity.Username == login || identity.Email == login {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (d *fakeDirectory) UpdateProfile(_ context.Context, id, fullName, email string) (*auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	identity.FullName = fullName
	identity.Email = email
	identity.UpdatedAt = time.Now().UTC()
	cp := *identity
	return &cp, nil
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, id, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	return nil
}

func (d *fakeDirectory) SetRefreshToken(_ context.Context, id, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.RefreshToken = token
	return nil
}

func (d *fakeDirectory) ClearRefreshToken(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.RefreshToken = ""
	return nil
}

func (d *fakeDirectory) RotateRefreshToken(_ context.Context, id, presented, next string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.byID[id]
	if !ok {
		return false, nil
	}
	if identity.RefreshToken == "" || identity.RefreshToken != presented {
		return false, nil
	}
	identity.RefreshToken = next
	return true, nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	issuer, err := auth.NewIssuer(auth.TokenConfig{
		AccessSecret:  "handlers-access-secret",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "handlers-refresh-secret",
		RefreshTTL:    240 * time.Hour,
		Issuer:        "vidora-test",
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	svc, err := auth.NewService(newFakeDirectory(), issuer)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	api := New(svc, ReadyProbe{}, "test")
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string, cookies []*http.Cookie) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string, cookies []*http.Cookie) *http.Response {
	return c.do(http.MethodPost, path, body, headers, cookies)
}

func (c *apiClient) register(username, email, fullName, password string) {
	c.t.Helper()
	resp := c.post("/api/v1/users/register", map[string]any{
		"username": username,
		"email":    email,
		"fullName": fullName,
		"password": password,
	}, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
}

func (c *apiClient) login(identifier, password string) *http.Response {
	c.t.Helper()
	return c.post("/api/v1/users/login", map[string]any{
		"identifier": identifier,
		"password":   password,
	}, nil, nil)
}

type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decodeEnvelope(t *testing.T, r *http.Response) testEnvelope {
	t.Helper()
	defer r.Body.Close()
	var env testEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegister(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/v1/users/register", map[string]any{
		"username": "Alice",
		"email":    "Alice@Example.com",
		"fullName": "Alice Liddell",
		"password": "correct horse",
	}, nil, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if !env.Success {
		t.Fatalf("expected success envelope")
	}
	var profile map[string]any
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile["username"] != "alice" || profile["email"] != "alice@example.com" {
		t.Fatalf("identifiers not normalized: %v", profile)
	}
	if _, leaked := profile["passwordHash"]; leaked {
		t.Fatalf("password hash leaked in response")
	}

	// Same identity again conflicts.
	resp = api.post("/api/v1/users/register", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"fullName": "Alice Liddell",
		"password": "correct horse",
	}, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", resp.StatusCode)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/v1/users/register", map[string]any{
		"username": "bob",
		"fullName": "",
		"password": "secret",
	}, nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Message != "fields email & fullName are required" {
		t.Fatalf("unexpected message: %q", env.Message)
	}
}

func TestLoginSetsSessionCookies(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	resp := api.login("alice", "correct horse")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	access := cookieByName(resp, "accessToken")
	refresh := cookieByName(resp, "refreshToken")
	if access == nil || refresh == nil {
		t.Fatalf("session cookies not set")
	}
	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly || !c.Secure {
			t.Fatalf("cookie %s must be HttpOnly and Secure", c.Name)
		}
		if c.SameSite != http.SameSiteStrictMode {
			t.Fatalf("cookie %s must be SameSite=Strict", c.Name)
		}
	}

	env := decodeEnvelope(t, resp)
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatalf("token pair missing from body")
	}
	user, ok := data["user"].(map[string]any)
	if !ok {
		t.Fatalf("user profile missing from login body")
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatalf("password hash leaked in login body")
	}
}

func TestLoginFailures(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	t.Run("wrong password", func(t *testing.T) {
		resp := api.login("alice", "battery staple")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
		env := decodeEnvelope(t, resp)
		if env.Message != "invalid user credentials" {
			t.Fatalf("unexpected message: %q", env.Message)
		}
		if cookieByName(resp, "accessToken") != nil {
			t.Fatalf("cookie set on failed login")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := api.login("mallory", "whatever")
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		resp := api.post("/api/v1/users/login", map[string]any{}, nil, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	})
}

func TestRefreshRotation(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	loginResp := api.login("alice", "correct horse")
	loginResp.Body.Close()
	firstRefresh := cookieByName(loginResp, "refreshToken")
	if firstRefresh == nil {
		t.Fatalf("refresh cookie not set on login")
	}

	// First exchange succeeds and rotates the stored token.
	resp := api.post("/api/v1/users/refresh-token", nil, nil, []*http.Cookie{
		{Name: "refreshToken", Value: firstRefresh.Value},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected refresh status: %d", resp.StatusCode)
	}
	secondRefresh := cookieByName(resp, "refreshToken")
	if secondRefresh == nil || secondRefresh.Value == firstRefresh.Value {
		t.Fatalf("refresh token was not rotated")
	}
	resp.Body.Close()

	// Replaying the consumed token fails generically.
	resp = api.post("/api/v1/users/refresh-token", nil, nil, []*http.Cookie{
		{Name: "refreshToken", Value: firstRefresh.Value},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed token accepted: %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Message != "unauthorized request" {
		t.Fatalf("unexpected message: %q", env.Message)
	}

	// The rotated token stays usable.
	resp = api.post("/api/v1/users/refresh-token", map[string]any{
		"refreshToken": secondRefresh.Value,
	}, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated token rejected: %d", resp.StatusCode)
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/v1/users/refresh-token", nil, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	loginResp := api.login("alice", "correct horse")
	loginResp.Body.Close()
	access := cookieByName(loginResp, "accessToken")
	refresh := cookieByName(loginResp, "refreshToken")

	resp := api.post("/api/v1/users/logout", nil, nil, []*http.Cookie{
		{Name: "accessToken", Value: access.Value},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected logout status: %d", resp.StatusCode)
	}
	for _, name := range []string{"accessToken", "refreshToken"} {
		cleared := cookieByName(resp, name)
		if cleared == nil || cleared.Value != "" || cleared.MaxAge >= 0 {
			t.Fatalf("cookie %s not cleared on logout", name)
		}
	}
	resp.Body.Close()

	// The pre-logout refresh token is dead.
	resp = api.post("/api/v1/users/refresh-token", nil, nil, []*http.Cookie{
		{Name: "refreshToken", Value: refresh.Value},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: %d", resp.StatusCode)
	}
}

func TestLogoutRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/v1/users/logout", nil, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestCurrentUser(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	loginResp := api.login("alice", "correct horse")
	loginResp.Body.Close()
	access := cookieByName(loginResp, "accessToken")

	t.Run("via cookie", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/users/current-user", nil, nil, []*http.Cookie{
			{Name: "accessToken", Value: access.Value},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
		env := decodeEnvelope(t, resp)
		var profile map[string]any
		if err := json.Unmarshal(env.Data, &profile); err != nil {
			t.Fatalf("decode profile: %v", err)
		}
		if profile["username"] != "alice" {
			t.Fatalf("unexpected profile: %v", profile)
		}
	})

	t.Run("via bearer header", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/users/current-user", nil, map[string]string{
			"Authorization": "Bearer " + access.Value,
		}, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	})

	t.Run("without token", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/users/current-user", nil, nil, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/users/current-user", nil, map[string]string{
			"Authorization": "Bearer " + access.Value + "x",
		}, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	})
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	loginResp := api.login("alice", "correct horse")
	loginResp.Body.Close()
	access := cookieByName(loginResp, "accessToken")
	session := []*http.Cookie{{Name: "accessToken", Value: access.Value}}

	resp := api.post("/api/v1/users/change-password", map[string]any{
		"oldPassword": "battery staple",
		"newPassword": "new password",
	}, nil, session)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong old password accepted: %d", resp.StatusCode)
	}

	resp = api.post("/api/v1/users/change-password", map[string]any{
		"oldPassword": "correct horse",
		"newPassword": "new password",
	}, nil, session)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	// Old password no longer works; new one does.
	resp = api.login("alice", "correct horse")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", resp.StatusCode)
	}
	resp = api.login("alice", "new password")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new password rejected: %d", resp.StatusCode)
	}
}

func TestUpdateAccount(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "alice@example.com", "Alice Liddell", "correct horse")

	loginResp := api.login("alice", "correct horse")
	loginResp.Body.Close()
	access := cookieByName(loginResp, "accessToken")
	session := []*http.Cookie{{Name: "accessToken", Value: access.Value}}

	resp := api.do(http.MethodPatch, "/api/v1/users/update-account", map[string]any{
		"fullName": "Alice P. Liddell",
	}, nil, session)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	var profile map[string]any
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile["fullName"] != "Alice P. Liddell" {
		t.Fatalf("full name not updated: %v", profile)
	}
	if profile["email"] != "alice@example.com" {
		t.Fatalf("email changed by unrelated update: %v", profile)
	}

	// Login survives a profile update.
	resp = api.login("alice", "correct horse")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login broken after profile update: %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/api/v1/users/login", nil, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("unexpected Allow header: %q", allow)
	}
}

func TestMalformedBody(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, api.baseURL+"/api/v1/users/login", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/healthz", nil, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["service"] != "vidora-api" || data["version"] != "test" {
		t.Fatalf("unexpected health payload: %v", data)
	}
}
