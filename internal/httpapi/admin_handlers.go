package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/auth"
	"sportai.io/internal/facility"
)

type createUserRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

type configUpdateRequest struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	Value   any    `json:"value"`
}

type auditResponse struct {
	Segments []string      `json:"segments"`
	File     string        `json:"file,omitempty"`
	Entries  []audit.Entry `json:"entries"`
	Actions  []string      `json:"actions"`
	Users    []string      `json:"users"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Please fill in all required fields")
		return
	}
	role := auth.RoleUser
	if req.Role != "" {
		var err error
		if role, err = auth.ParseRole(req.Role); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
	}
	if err := a.auth.AddUser(r.Context(), req.Email, req.Password, role, req.Permissions); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"email": auth.NormalizeEmail(req.Email),
		"role":  role,
	})
}

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !requirePermission(w, r, auth.PermRead) {
		return
	}
	doc, err := a.facility.Document()
	if err != nil {
		a.log.Error("render configuration", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facility_id": a.facility.ID(),
		"config":      doc,
	})
}

func (a *API) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req configUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	st, _ := auth.SessionFromContext(r.Context())
	if err := a.facility.Update(r.Context(), st.Email, req.Section, req.Key, req.Value); err != nil {
		handleFacilityError(w, r, err)
		return
	}
	a.reloadTools()
	if a.health != nil {
		a.health.Sync()
	}
	doc, err := a.facility.Document()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facility_id": a.facility.ID(),
		"config":      doc,
	})
}

func handleFacilityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, facility.ErrUnknownSetting):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, facility.ErrInvalidValue):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "Error updating configuration")
	}
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	segments, err := a.audit.Segments()
	if err != nil {
		a.log.Error("list audit segments", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	resp := auditResponse{Segments: segments, Entries: []audit.Entry{}}

	q := r.URL.Query()
	resp.File = q.Get("file")
	if resp.File == "" {
		if len(segments) == 0 {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		resp.File = segments[0]
	}

	f := audit.Filter{Action: q.Get("action"), User: q.Get("user")}
	if raw := q.Get("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		f.Date = d
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		f.Limit = n
	}

	entries, err := a.audit.Read(resp.File, f)
	switch {
	case errors.Is(err, audit.ErrInvalidSegment):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusNotFound, "audit file not found")
		return
	}
	resp.Entries = entries
	if resp.Actions, resp.Users, err = a.audit.Facets(resp.File); err != nil {
		a.log.Warn("audit facets", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	active, err := a.auth.ActiveSessions(r.Context())
	if err != nil {
		a.log.Warn("count sessions", zap.Error(err))
	}
	body := map[string]any{
		"version":         a.version,
		"facility_id":     a.facility.ID(),
		"uptime_seconds":  int(time.Since(a.started).Seconds()),
		"active_sessions": active,
		"license":         a.license.Validate(),
	}
	if menu := a.currentMenu(); menu != nil {
		body["modules"] = menu.Health()
		body["entries"] = menu.Entries()
	}
	if err := a.ready.Check(r.Context()); err != nil {
		body["database"] = "unavailable: " + err.Error()
	} else {
		body["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, body)
}
