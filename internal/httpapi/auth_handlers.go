package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/auth"
	"sportai.io/internal/session"
)

type loginResponse struct {
	Token              string    `json:"token"`
	SessionID          string    `json:"session_id"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	Permissions        []string  `json:"permissions"`
	MustChangePassword bool      `json:"must_change_password"`
	ExpiresAt          time.Time `json:"expires_at"`
}

type sessionResponse struct {
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	Permissions        []string  `json:"permissions"`
	SessionID          string    `json:"session_id"`
	LoginTime          time.Time `json:"login_time"`
	MustChangePassword bool      `json:"must_change_password"`
	RemainingSeconds   int       `json:"remaining_seconds"`
}

type changePasswordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
	Confirm string `json:"confirm_password"`
}

type totpConfirmRequest struct {
	Code string `json:"code"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Please fill in all required fields")
		return
	}

	st, err := a.auth.Authenticate(r.Context(), req)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:              st.SessionToken,
		SessionID:          st.SessionID,
		Email:              st.Email,
		Role:               st.Role,
		Permissions:        st.Permissions,
		MustChangePassword: st.MustChangePassword,
		ExpiresAt:          st.LoginTime.Add(a.auth.Timeout()).UTC(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.auth.Logout(r.Context(), token); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.Register(r.Context(), req); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"email":   auth.NormalizeEmail(req.Email),
		"message": "Registration successful! Please login.",
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	st, _ := auth.SessionFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Confirm != "" && req.Confirm != req.New {
		writeError(w, r, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if err := a.auth.ChangePassword(r.Context(), st.Email, req.Current, req.New); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTOTPEnroll(w http.ResponseWriter, r *http.Request) {
	st, _ := auth.SessionFromContext(r.Context())
	enrollment, err := a.auth.EnableTOTP(r.Context(), st.Email)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

func (a *API) handleTOTPConfirm(w http.ResponseWriter, r *http.Request) {
	st, _ := auth.SessionFromContext(r.Context())
	var req totpConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ConfirmTOTP(r.Context(), st.Email, req.Code); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"two_factor_enabled": true})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	st, _ := auth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, newSessionResponse(st, a.auth.Remaining(st)))
}

func newSessionResponse(st session.State, remaining time.Duration) sessionResponse {
	return sessionResponse{
		Email:              st.Email,
		Role:               st.Role,
		Permissions:        st.Permissions,
		SessionID:          st.SessionID,
		LoginTime:          st.LoginTime.UTC(),
		MustChangePassword: st.MustChangePassword,
		RemainingSeconds:   int(remaining / time.Second),
	}
}

func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		loginErr *auth.LoginError
		valErr   *auth.ValidationError
	)
	switch {
	case errors.As(err, &loginErr):
		payload := map[string]any{"error": loginErr.Message}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		code := http.StatusUnauthorized
		if errors.Is(err, auth.ErrAccountLocked) {
			code = http.StatusLocked
			secs := int(math.Ceil(loginErr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			payload["retry_after_seconds"] = secs
		} else if errors.Is(err, auth.ErrTOTPRequired) {
			payload["totp_required"] = true
		} else if loginErr.Remaining > 0 {
			payload["attempts_remaining"] = loginErr.Remaining
		}
		writeJSON(w, code, payload)
	case errors.Is(err, auth.ErrTOTPRequired):
		writeError(w, r, http.StatusUnauthorized, "Verification code required")
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      valErr.Error(),
			"violations": valErr.Violations,
		})
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusBadRequest, "Current password is incorrect")
	case errors.Is(err, auth.ErrTOTPNotEnrolled):
		writeError(w, r, http.StatusConflict, "Two-factor enrollment has not been started")
	case errors.Is(err, auth.ErrTOTPEnabled):
		writeError(w, r, http.StatusConflict, "Two-factor authentication is already enabled")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		a.log.Error("auth request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "An error occurred. Please try again.")
	}
}
