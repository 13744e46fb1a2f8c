package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/auth"
	"sportai.io/internal/facility"
	"sportai.io/internal/license"
	"sportai.io/internal/obs"
	"sportai.io/internal/stream"
	"sportai.io/internal/tools"
)

const (
	maxBodyBytes = 1 << 20

	// Login brute-force guard per client IP, on top of account lockout.
	loginBurst     = 10
	loginPerSecond = 0.2
)

// ReadyProbe checks the relational database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the API serves.
type Deps struct {
	Auth     *auth.Service
	Facility *facility.Store
	License  *license.Manager
	Tools    *tools.Loader
	Audit    *audit.Log
	// Health is re-synced after configuration changes. Optional.
	Health   *HealthServer
	// Stream feeds GET /v1/audit/stream. Optional.
	Stream   *stream.Stream
	Ready    ReadyProbe
	Version  string
	Logger   *zap.Logger
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	auth     *auth.Service
	facility *facility.Store
	license  *license.Manager
	loader   *tools.Loader
	audit    *audit.Log
	health   *HealthServer
	stream   *stream.Stream
	ready    ReadyProbe
	version  string
	log      *zap.Logger
	started  time.Time

	menuMu sync.RWMutex
	menu   *tools.Menu

	rateBurst  int
	ratePerSec float64
}

// New wires routes. The tool menu is loaded immediately for the current subscription tier.
func New(d Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       d.Auth,
		facility:   d.Facility,
		license:    d.License,
		loader:     d.Tools,
		audit:      d.Audit,
		health:     d.Health,
		stream:     d.Stream,
		ready:      d.Ready,
		version:    d.Version,
		log:        d.Logger,
		started:    time.Now(),
		rateBurst:  loginBurst,
		ratePerSec: loginPerSecond,
	}
	if a.log == nil {
		a.log = obs.Logger()
	}
	a.reloadTools()

	// health/ready/metrics
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.HandleFunc("GET /{$}", a.Dashboard)

	// auth
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("POST /v1/auth/totp", a.handleTOTPEnroll)
	a.mux.HandleFunc("POST /v1/auth/totp/confirm", a.handleTOTPConfirm)
	a.mux.HandleFunc("GET /v1/session", a.handleSession)

	// administration
	a.mux.HandleFunc("GET /v1/users", a.handleListUsers)
	a.mux.HandleFunc("POST /v1/users", a.handleCreateUser)
	a.mux.HandleFunc("GET /v1/config", a.handleGetConfig)
	a.mux.HandleFunc("PATCH /v1/config", a.handleUpdateConfig)
	a.mux.HandleFunc("GET /v1/audit", a.handleAudit)
	a.mux.HandleFunc("GET /v1/audit/stream", a.Stream)
	a.mux.HandleFunc("GET /v1/system/health", a.handleSystemHealth)

	// license and tools
	a.mux.HandleFunc("GET /v1/license", a.handleLicense)
	a.mux.HandleFunc("GET /v1/features/{name}", a.handleFeature)
	a.mux.HandleFunc("GET /v1/plans", a.handlePlans)
	a.mux.HandleFunc("GET /v1/tools", a.handleListTools)
	a.mux.HandleFunc("GET /v1/tools/{capability}", a.handleTool)

	return a
}

// Handler returns the full middleware chain around the routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), a.rateBurst, a.ratePerSec))
	mux.Handle("/", a.mux)

	var h http.Handler = mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) reloadTools() {
	if a.loader == nil || a.facility == nil {
		return
	}
	cfg := a.facility.Config()
	menu := a.loader.Load(cfg.Subscription.Tier, tools.Env{Config: cfg})
	a.menuMu.Lock()
	a.menu = menu
	a.menuMu.Unlock()
}

func (a *API) currentMenu() *tools.Menu {
	a.menuMu.RLock()
	defer a.menuMu.RUnlock()
	return a.menu
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sportai",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
