package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/auth"
	"sportai.io/internal/facility"
	"sportai.io/internal/license"
	"sportai.io/internal/stream"
	"sportai.io/internal/tools"
)

const (
	adminEmail    = "admin@club.com"
	adminPassword = "Adm1n!pass"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	clock   *testClock
	api     *API
	dir     string
}

func newTestAPI(t *testing.T, tune ...func(*API)) *apiClient {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	hub := stream.New()
	auditLog := audit.NewLog(filepath.Join(dir, "audit_logs"), audit.WithClock(clock.now), audit.WithMirror(hub))
	fac, err := facility.Open(filepath.Join(dir, "configurations"),
		facility.WithClock(clock.now), facility.WithAuditLog(auditLog))
	require.NoError(t, err)

	hasher, err := auth.NewHasher("0123456789abcdef")
	require.NoError(t, err)
	svc, err := auth.NewService(ctx, auth.NewFileStore(filepath.Join(dir, "database"), fac.ID()), hasher,
		auth.WithClock(clock.now),
		auth.WithAuditLog(auditLog),
		auth.WithTokenSecret("test-secret"),
		auth.WithBootstrapAdmin(adminEmail, adminPassword),
		auth.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	keyPath := filepath.Join(dir, "license.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("TRIAL-0123456789ABCDEF0123456789ABCDEF\n"), 0o600))
	lic := license.NewManager(keyPath, fac, license.WithClock(clock.now))

	api := New(Deps{
		Auth:     svc,
		Facility: fac,
		License:  lic,
		Tools:    tools.NewLoader(tools.Builtin()),
		Audit:    auditLog,
		Health:   NewHealthServer(lic),
		Stream:   hub,
		Version:  "test",
		Logger:   zap.NewNop(),
	})
	api.rateBurst = 100
	api.ratePerSec = 100
	for _, fn := range tune {
		fn(api)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		clock:   clock,
		api:     api,
		dir:     dir,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	return c.do(http.MethodPost, path, body, token)
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, token)
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{"email": email, "password": password}, "")
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	body := decode[loginResponse](c.t, resp)
	require.NotEmpty(c.t, body.Token)
	return body.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(r.Body).Decode(&v))
	return v
}

func TestLoginSessionLogout(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/login", map[string]any{"email": "Admin@Club.com", "password": adminPassword}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[loginResponse](t, resp)
	assert.Equal(t, adminEmail, login.Email)
	assert.Equal(t, "admin", login.Role)
	assert.Equal(t, []string{"all"}, login.Permissions)
	assert.Equal(t, api.clock.now().Add(time.Hour), login.ExpiresAt)

	resp = api.get("/v1/session", nil, login.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[sessionResponse](t, resp)
	assert.Equal(t, login.SessionID, sess.SessionID)
	assert.Equal(t, 3600, sess.RemainingSeconds)

	resp = api.post("/v1/auth/logout", nil, login.Token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.get("/v1/session", nil, login.Token)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/session", nil, "")
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing bearer token", body["error"])
	assert.NotEmpty(t, body["request_id"])

	resp = api.get("/v1/session", nil, "not-a-jwt")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginLockout(t *testing.T) {
	api := newTestAPI(t)

	for i := 1; i <= 4; i++ {
		resp := api.post("/v1/auth/login", map[string]any{"email": adminEmail, "password": "wrong"}, "")
		body := decode[map[string]any](t, resp)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.EqualValues(t, 5-i, body["attempts_remaining"])
	}

	resp := api.post("/v1/auth/login", map[string]any{"email": adminEmail, "password": "wrong"}, "")
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "Too many failed attempts. Account locked for 15 minutes.", body["error"])
	assert.Equal(t, "900", resp.Header.Get("Retry-After"))

	api.clock.advance(time.Minute)
	resp = api.post("/v1/auth/login", map[string]any{"email": adminEmail, "password": adminPassword}, "")
	body = decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "Account locked. Try again in 14 minutes.", body["error"])

	api.clock.advance(15 * time.Minute)
	api.login(adminEmail, adminPassword)
}

func TestSessionExpiresAfterTimeout(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	api.clock.advance(3600 * time.Second)
	resp := api.get("/v1/session", nil, token)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	api.clock.advance(time.Second)
	resp = api.get("/v1/session", nil, token)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Session expired. Please log in again.", body["error"])

	entries, err := api.api.audit.Read(audit.SegmentName(api.clock.now()), audit.Filter{Action: audit.ActionSessionTimeout})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRegisterAndRoleChecks(t *testing.T) {
	api := newTestAPI(t)
	form := map[string]any{
		"email":            "member@club.com",
		"password":         "Memb3r!pass",
		"confirm_password": "Memb3r!pass",
		"accept_terms":     true,
	}

	resp := api.post("/v1/auth/register", form, "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.post("/v1/auth/register", form, "")
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "User already exists", body["error"])

	form["email"] = "other@club.com"
	form["confirm_password"] = "different"
	resp = api.post("/v1/auth/register", form, "")
	body = decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Passwords do not match", body["error"])

	token := api.login("member@club.com", "Memb3r!pass")

	resp = api.get("/v1/users", nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.get("/v1/config", nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodPatch, "/v1/config", map[string]any{"section": "facility", "key": "name", "value": "X"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminUserManagement(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	resp := api.post("/v1/users", map[string]any{"email": "coach@club.com", "password": "weak", "role": "staff"}, token)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["violations"], "Password must be at least 8 characters")

	resp = api.post("/v1/users", map[string]any{"email": "coach@club.com", "password": "C0ach!pass", "role": "wizard"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.post("/v1/users", map[string]any{"email": "coach@club.com", "password": "C0ach!pass", "role": "staff"}, token)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.get("/v1/users", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Users []auth.UserSummary `json:"users"`
	}](t, resp)
	require.Len(t, list.Users, 2)
	assert.Equal(t, adminEmail, list.Users[0].Email)
	assert.Equal(t, "coach@club.com", list.Users[1].Email)
	assert.Equal(t, auth.RoleStaff, list.Users[1].Role)
}

func TestConfigUpdateReloadsTools(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	resp := api.get("/v1/tools", nil, token)
	before := decode[struct {
		Health tools.Health `json:"health"`
	}](t, resp)
	assert.Equal(t, 19, before.Health.Loaded)
	assert.Equal(t, 1, before.Health.Failed)

	resp = api.do(http.MethodPatch, "/v1/config", map[string]any{"section": "subscription", "key": "tier", "value": "starter"}, token)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.get("/v1/tools", nil, token)
	after := decode[struct {
		Tools  []tools.Entry `json:"tools"`
		Health tools.Health  `json:"health"`
	}](t, resp)
	assert.Equal(t, 16, after.Health.Total)
	for _, e := range after.Tools {
		if e.AI() {
			assert.Equal(t, tools.StateSkipped, e.State)
		}
	}

	resp = api.get("/v1/features/ai_modules", nil, token)
	feature := decode[map[string]any](t, resp)
	assert.Equal(t, false, feature["available"])

	resp = api.do(http.MethodPatch, "/v1/config", map[string]any{"section": "facility", "key": "mascot", "value": "owl"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(http.MethodPatch, "/v1/config", map[string]any{"section": "limits", "key": "max_users", "value": "many"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.get("/v1/audit", url.Values{"action": {audit.ActionConfigUpdated}}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trail := decode[auditResponse](t, resp)
	require.Len(t, trail.Entries, 1)
	assert.Equal(t, "subscription.tier = starter", trail.Entries[0].Details)
	assert.Equal(t, adminEmail, trail.Entries[0].User)
	assert.Contains(t, trail.Actions, audit.ActionLoginSuccess)
}

func TestAuditQueryValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	resp := api.get("/v1/audit", url.Values{"date": {"10/03/2026"}}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.get("/v1/audit", url.Values{"file": {"../../etc/passwd"}}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.get("/v1/audit", url.Values{"date": {"2026-03-10"}, "user": {adminEmail}}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trail := decode[auditResponse](t, resp)
	assert.Equal(t, "audit_202603.jsonl", trail.File)
	require.NotEmpty(t, trail.Entries)
	assert.Equal(t, audit.ActionLoginSuccess, trail.Entries[0].Action)
	assert.NotEmpty(t, trail.Entries[0].SessionID)
}

func TestOverlongLoginEmailKeepsAuditReadable(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	raw := `{"email":"` + strings.Repeat("<", 250_000) + `@x.com","password":"x"}`
	resp, err := api.client.Post(api.baseURL+"/v1/auth/login", "application/json", strings.NewReader(raw))
	require.NoError(t, err)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email address is too long", body["error"])

	resp = api.get("/v1/audit", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trail := decode[auditResponse](t, resp)
	require.NotEmpty(t, trail.Entries)
	for _, e := range trail.Entries {
		assert.Less(t, len(e.User), auth.MaxEmailLength+1)
	}
}

func TestLicenseAndPlans(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/plans", nil, "")
	plans := decode[map[string][]license.Plan](t, resp)
	assert.Len(t, plans["plans"], 3)

	token := api.login(adminEmail, adminPassword)
	resp = api.get("/v1/license", nil, token)
	info := decode[license.Info](t, resp)
	assert.True(t, info.Status.Valid)
	assert.Equal(t, facility.TierProfessional, info.Tier)
	assert.True(t, strings.HasSuffix(info.Key, "CDEF"))
	assert.True(t, strings.HasPrefix(info.Key, "****"))
	assert.True(t, info.CanUpgrade)

	resp = api.get("/v1/features/ai_modules", nil, token)
	feature := decode[map[string]any](t, resp)
	assert.Equal(t, true, feature["available"])

	resp = api.get("/v1/features/white_label", nil, token)
	feature = decode[map[string]any](t, resp)
	assert.Equal(t, false, feature["available"])

	resp = api.get("/v1/features/teleport", nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestToolSummaries(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	resp := api.get("/v1/tools/central_dashboard", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sum := decode[tools.Summary](t, resp)
	assert.Equal(t, tools.CentralDashboard, sum.Capability)
	assert.NotEmpty(t, sum.Metrics)

	resp = api.get("/v1/tools/sms_alert_center", nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = api.get("/v1/tools/teleporter", nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.get("/v1/system/health", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, health["active_sessions"])
	assert.Equal(t, "ok", health["database"])
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	resp := api.post("/v1/auth/password", map[string]any{"current_password": "nope", "new_password": "N3w!passw0rd"}, token)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect", body["error"])

	resp = api.post("/v1/auth/password", map[string]any{"current_password": adminPassword, "new_password": "N3w!passw0rd"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	api.login(adminEmail, "N3w!passw0rd")
}

func TestTwoFactorLogin(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	resp := api.post("/v1/auth/totp/confirm", map[string]any{"code": "123456"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.post("/v1/auth/totp", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	enrollment := decode[auth.TOTPEnrollment](t, resp)
	require.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")

	code, err := totp.GenerateCode(enrollment.Secret, api.clock.now())
	require.NoError(t, err)
	resp = api.post("/v1/auth/totp/confirm", map[string]any{"code": code}, token)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.post("/v1/auth/login", map[string]any{"email": adminEmail, "password": adminPassword}, "")
	body := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, true, body["totp_required"])

	resp = api.post("/v1/auth/login", map[string]any{"email": adminEmail, "password": adminPassword, "totp_code": code}, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.post("/v1/auth/totp", nil, token)
	body = decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Two-factor authentication is already enabled", body["error"])

	resp = api.post("/v1/auth/login", map[string]any{"email": adminEmail, "password": adminPassword}, "")
	body = decode[map[string]any](t, resp)
	assert.Equal(t, true, body["totp_required"], "two-factor must stay on")
}

func TestLoginRateLimited(t *testing.T) {
	api := newTestAPI(t, func(a *API) {
		a.rateBurst = 1
		a.ratePerSec = 0.001
	})

	resp := api.post("/v1/auth/login", map[string]any{"email": "x@club.com", "password": "y"}, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = api.post("/v1/auth/login", map[string]any{"email": "x@club.com", "password": "y"}, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestDashboardAndProbes(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/", nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Your Sports Complex")
	assert.Contains(t, string(page), "License valid until")
	assert.Contains(t, string(page), "#1E40AF")

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := api.get(path, nil, "")
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp2 := api.get("/v1/unknown", nil, "")
	resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAuditStream(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(adminEmail, adminPassword)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/audit/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := api.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": stream started\n", line)

	patch := api.do(http.MethodPatch, "/v1/config", map[string]any{"section": "facility", "key": "name", "value": "Riverside"}, token)
	patch.Body.Close()
	require.Equal(t, http.StatusOK, patch.StatusCode)

	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = rest
		}
	}
	var entry audit.Entry
	require.NoError(t, json.Unmarshal([]byte(data), &entry))
	assert.Equal(t, audit.ActionConfigUpdated, entry.Action)
	assert.Equal(t, "facility.name = Riverside", entry.Details)
}

func TestAuditStreamRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/v1/auth/register", map[string]any{
		"email": "fan@club.com", "password": "F4n!passw", "confirm_password": "F4n!passw", "accept_terms": true,
	}, "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	token := api.login("fan@club.com", "F4n!passw")
	resp = api.get("/v1/audit/stream", nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
