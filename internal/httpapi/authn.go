package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/auth"
	"sportai.io/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/auth/login",
	"/v1/auth/register",
	"/v1/plans",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth resolves the bearer token into a session for every non-public path.
// The client address is attached for the audit trail on every request.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithClientIP(r.Context(), clientIP(r))
		r = r.WithContext(ctx)

		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sportai"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		st, err := a.auth.ValidateSession(ctx, token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sportai"`)
			switch {
			case errors.Is(err, session.ErrExpired):
				writeError(w, r, http.StatusUnauthorized, "Session expired. Please log in again.")
			case errors.Is(err, auth.ErrUnauthorized):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				a.log.Error("validate session", zap.Error(err))
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx = auth.ContextWithSession(ctx, st)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = audit.WithSessionID(ctx, st.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission writes 403 and returns false when the session lacks perm.
func requirePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	if _, ok := auth.SessionFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !auth.Allowed(r.Context(), perm) {
		writeError(w, r, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

// requireAdmin limits a handler to the admin role.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	st, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if st.Role != string(auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "Access denied. Admin privileges required.")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
