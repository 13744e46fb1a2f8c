package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/ids"
	"sportai.io/internal/obs"
	"sportai.io/internal/session"
)

const (
	// DefaultMaxAttempts is the number of consecutive failures that locks an account.
	DefaultMaxAttempts = 5
	// DefaultLockout is how long a locked account rejects logins.
	DefaultLockout = 900 * time.Second

	// DefaultAdminEmail is the account provisioned on first run.
	DefaultAdminEmail = "admin@facility.com"
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// Service authenticates users, enforces lockout and owns session lifecycle.
type Service struct {
	users     UserStore
	sessions  session.Store
	hasher    *Hasher
	tokens    *TokenIssuer
	audit     *audit.Log
	validator session.Validator
	log       *zap.Logger
	now       func() time.Time

	timeout     time.Duration
	maxAttempts int
	lockout     time.Duration

	bootstrapEmail    string
	bootstrapPassword string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(store session.Store) ServiceOption {
	return func(s *Service) error {
		if store == nil {
			return errors.New("auth: nil session store")
		}
		s.sessions = store
		return nil
	}
}

// WithAuditLog enables audit recording.
func WithAuditLog(l *audit.Log) ServiceOption {
	return func(s *Service) error {
		s.audit = l
		return nil
	}
}

// WithTokenSecret sets the HS256 signing key.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		s.tokens = NewTokenIssuer(secret, func() time.Time { return s.now() })
		return nil
	}
}

// WithSessionTimeout sets the session lifetime.
func WithSessionTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d > 0 {
			s.timeout = d
		}
		return nil
	}
}

// WithLockoutPolicy overrides the failure threshold and lock duration.
func WithLockoutPolicy(maxAttempts int, lockout time.Duration) ServiceOption {
	return func(s *Service) error {
		if maxAttempts <= 0 || lockout <= 0 {
			return errors.New("auth: lockout policy must be positive")
		}
		s.maxAttempts = maxAttempts
		s.lockout = lockout
		return nil
	}
}

// WithBootstrapAdmin provisions the given admin instead of the generated default
// when the user store is empty.
func WithBootstrapAdmin(email, password string) ServiceOption {
	return func(s *Service) error {
		email = NormalizeEmail(email)
		if email == "" || password == "" {
			return errors.New("auth: bootstrap admin requires email and password")
		}
		s.bootstrapEmail = email
		s.bootstrapPassword = password
		return nil
	}
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService constructs Service and provisions the first admin if users is empty.
func NewService(ctx context.Context, users UserStore, hasher *Hasher, opts ...ServiceOption) (*Service, error) {
	if users == nil || hasher == nil {
		return nil, errors.New("auth: user store and hasher are required")
	}
	svc := &Service{
		users:       users,
		sessions:    session.NewMemoryStore(),
		hasher:      hasher,
		log:         obs.Logger(),
		now:         time.Now,
		timeout:     session.DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		lockout:     DefaultLockout,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.tokens == nil {
		svc.tokens = NewTokenIssuer("", func() time.Time { return svc.now() })
	}
	svc.validator = session.NewValidator(svc.timeout, svc.now)

	if err := svc.bootstrap(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) bootstrap(ctx context.Context) error {
	n, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	email, password, generated := s.bootstrapEmail, s.bootstrapPassword, false
	if email == "" {
		email, password, generated = DefaultAdminEmail, ids.Token(12), true
	}
	rec := s.newRecord(password, RoleAdmin, nil)
	rec.MustChangePassword = generated
	if err := s.users.Create(ctx, email, rec); err != nil {
		return fmt.Errorf("auth: provision admin: %w", err)
	}
	if notices, ok := s.users.(SetupNotices); ok && generated {
		if err := notices.WriteSetupNotice(email, password); err != nil {
			return fmt.Errorf("auth: write setup notice: %w", err)
		}
	}
	s.log.Info("provisioned initial admin", zap.String("email", email), zap.Bool("generated", generated))
	return nil
}

func (s *Service) newRecord(password string, role Role, perms []string) UserRecord {
	if len(perms) == 0 {
		perms = DefaultPermissions(role)
	}
	return UserRecord{
		PasswordHash: s.hasher.Hash(password),
		Role:         role,
		CreatedAt:    s.now().UTC(),
		APIKey:       ids.Token(32),
		Permissions:  append([]string(nil), perms...),
	}
}

// Timeout returns the configured session lifetime.
func (s *Service) Timeout() time.Duration { return s.timeout }

// LoginRequest carries credentials for Authenticate.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type loginOutcome int

const (
	outcomeSuccess loginOutcome = iota
	outcomeLocked
	outcomeFailed
	outcomeLockedNow
	outcomeTOTPRequired
)

// Authenticate verifies credentials and opens a session.
//
// A locked account is rejected without checking the password. The first attempt after
// the lock expires starts from a zero failure count.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (session.State, error) {
	email := NormalizeEmail(req.Email)
	if len(email) > MaxEmailLength {
		return session.State{}, invalid("Email address is too long")
	}
	now := s.now()

	var (
		outcome  loginOutcome
		attempts int
	)
	rec, err := s.users.Update(ctx, email, func(u *UserRecord) error {
		if u.Locked(now) {
			outcome = outcomeLocked
			return nil
		}
		if u.LockedUntil != nil {
			u.LockedUntil = nil
			u.FailedAttempts = 0
		}

		ok := s.hasher.Verify(u.PasswordHash, req.Password)
		if ok && u.TwoFactorEnabled {
			if strings.TrimSpace(req.TOTPCode) == "" {
				outcome = outcomeTOTPRequired
				return nil
			}
			ok = s.validateTOTP(u.TOTPSecret, req.TOTPCode)
		}
		if !ok {
			u.FailedAttempts++
			attempts = u.FailedAttempts
			outcome = outcomeFailed
			if u.FailedAttempts >= s.maxAttempts {
				until := now.Add(s.lockout).UTC()
				u.LockedUntil = &until
				outcome = outcomeLockedNow
			}
			return nil
		}

		u.FailedAttempts = 0
		last := now.UTC()
		u.LastLogin = &last
		outcome = outcomeSuccess
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		s.record(ctx, email, audit.ActionLoginFailed, "User not found")
		obs.ObserveLogin("failed")
		return session.State{}, &LoginError{Err: ErrInvalidCredentials, Message: "Invalid credentials"}
	}
	if err != nil {
		return session.State{}, err
	}

	switch outcome {
	case outcomeLocked:
		left := rec.LockedUntil.Sub(now)
		obs.ObserveLogin("locked")
		return session.State{}, &LoginError{
			Err:        ErrAccountLocked,
			Message:    fmt.Sprintf("Account locked. Try again in %d minutes.", int(left/time.Minute)),
			RetryAfter: left,
		}
	case outcomeTOTPRequired:
		return session.State{}, &LoginError{Err: ErrTOTPRequired, Message: "Verification code required"}
	case outcomeLockedNow:
		obs.ObserveLogin("failed")
		obs.ObserveLockout()
		s.record(ctx, email, audit.ActionAccountLocked, fmt.Sprintf("After %d attempts", attempts))
		s.record(ctx, email, audit.ActionLoginFailed, "Invalid password")
		return session.State{}, &LoginError{
			Err:        ErrAccountLocked,
			Message:    fmt.Sprintf("Too many failed attempts. Account locked for %d minutes.", int(s.lockout/time.Minute)),
			RetryAfter: s.lockout,
		}
	case outcomeFailed:
		remaining := s.maxAttempts - attempts
		obs.ObserveLogin("failed")
		s.record(ctx, email, audit.ActionLoginFailed, "Invalid password")
		return session.State{}, &LoginError{
			Err:       ErrInvalidCredentials,
			Message:   fmt.Sprintf("Invalid credentials. %d attempts remaining.", remaining),
			Remaining: remaining,
		}
	}

	st := session.State{
		Email:              email,
		Role:               string(rec.Role),
		Permissions:        append([]string(nil), rec.Permissions...),
		LoginTime:          now.UTC(),
		SessionID:          uuid.NewString(),
		MustChangePassword: rec.MustChangePassword,
	}
	token, err := s.tokens.Issue(st, s.timeout)
	if err != nil {
		return session.State{}, err
	}
	st.SessionToken = token
	if err := s.sessions.Put(ctx, st); err != nil {
		return session.State{}, fmt.Errorf("auth: store session: %w", err)
	}
	s.refreshSessionGauge(ctx)

	if rec.Role == RoleAdmin {
		if notices, ok := s.users.(SetupNotices); ok {
			if err := notices.RemoveSetupNotice(); err != nil {
				s.log.Warn("remove setup notice", zap.Error(err))
			}
		}
	}
	obs.ObserveLogin("success")
	s.record(audit.WithSessionID(ctx, st.SessionID), email, audit.ActionLoginSuccess, "Role: "+string(rec.Role))
	return st, nil
}

// ValidateSession resolves a bearer token to a live session. Expired sessions are
// removed and audited on access.
func (s *Service) ValidateSession(ctx context.Context, token string) (session.State, error) {
	claims, err := s.tokens.Parse(token)
	tokenExpired := errors.Is(err, ErrTokenExpired)
	if err != nil && !tokenExpired {
		return session.State{}, ErrUnauthorized
	}
	st, err := s.sessions.Get(ctx, claims.ID)
	if errors.Is(err, session.ErrNotFound) {
		// Purged sessions were audited when they were removed.
		if tokenExpired || (claims.IssuedAt != nil && s.validator.Check(session.State{LoginTime: claims.IssuedAt.Time}) != nil) {
			return session.State{}, session.ErrExpired
		}
		return session.State{}, ErrUnauthorized
	}
	if err != nil {
		return session.State{}, err
	}
	if subtle.ConstantTimeCompare([]byte(st.SessionToken), []byte(strings.TrimSpace(token))) != 1 {
		return session.State{}, ErrUnauthorized
	}
	err = s.validator.Check(st)
	if err == nil && tokenExpired {
		err = session.ErrExpired
	}
	if err != nil {
		if derr := s.sessions.Delete(ctx, st.SessionID); derr != nil {
			s.log.Warn("delete expired session", zap.String("session_id", st.SessionID), zap.Error(derr))
		}
		s.refreshSessionGauge(ctx)
		s.record(audit.WithSessionID(ctx, st.SessionID), st.Email, audit.ActionSessionTimeout, "Session expired")
		return session.State{}, err
	}
	return st, nil
}

// PurgeExpired removes sessions that expired more than session.PurgeGrace ago and
// records a SESSION_TIMEOUT entry for each. Stores that are not a session.Purger are
// left alone and report zero.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	p, ok := s.sessions.(session.Purger)
	if !ok {
		return 0, nil
	}
	gone, err := p.Purge(ctx, s.now().Add(-s.timeout-session.PurgeGrace))
	for _, st := range gone {
		s.record(audit.WithSessionID(ctx, st.SessionID), st.Email, audit.ActionSessionTimeout, "Session expired")
	}
	if len(gone) > 0 {
		s.refreshSessionGauge(ctx)
	}
	return len(gone), err
}

// Remaining reports how long st stays valid.
func (s *Service) Remaining(st session.State) time.Duration {
	return s.validator.Remaining(st)
}

// Logout destroys the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return ErrUnauthorized
	}
	st, err := s.sessions.Get(ctx, claims.ID)
	if errors.Is(err, session.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, st.SessionID); err != nil {
		return err
	}
	s.refreshSessionGauge(ctx)
	s.record(audit.WithSessionID(ctx, st.SessionID), st.Email, audit.ActionLogout, "User logged out")
	return nil
}

// AddUser creates an account. Duplicate emails are rejected before password strength is checked.
func (s *Service) AddUser(ctx context.Context, email, password string, role Role, perms []string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return invalid("Please fill in all required fields")
	}
	if len(email) > MaxEmailLength {
		return invalid("Email address is too long")
	}
	if _, err := s.users.Find(ctx, email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if ok, violations := ValidatePasswordStrength(password); !ok {
		return invalid(violations...)
	}
	if role == "" {
		role = RoleUser
	}
	if err := s.users.Create(ctx, email, s.newRecord(password, role, perms)); err != nil {
		return err
	}
	s.record(ctx, email, audit.ActionUserCreated, "Role: "+string(role))
	return nil
}

// RegistrationRequest is the self-service sign-up form.
type RegistrationRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Confirm       string `json:"confirm_password"`
	AcceptedTerms bool   `json:"accept_terms"`
}

// Register validates the sign-up form and creates a user-role account.
func (s *Service) Register(ctx context.Context, req RegistrationRequest) error {
	switch {
	case strings.TrimSpace(req.Email) == "" || req.Password == "" || req.Confirm == "":
		return invalid("Please fill in all required fields")
	case req.Password != req.Confirm:
		return invalid("Passwords do not match")
	case !req.AcceptedTerms:
		return invalid("Please accept the terms and conditions")
	case !emailPattern.MatchString(strings.TrimSpace(req.Email)):
		return invalid("Invalid email format")
	}
	return s.AddUser(ctx, req.Email, req.Password, RoleUser, nil)
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, email, current, next string) error {
	email = NormalizeEmail(email)
	if ok, violations := ValidatePasswordStrength(next); !ok {
		return invalid(violations...)
	}
	_, err := s.users.Update(ctx, email, func(u *UserRecord) error {
		if !s.hasher.Verify(u.PasswordHash, current) {
			return ErrInvalidCredentials
		}
		u.PasswordHash = s.hasher.Hash(next)
		u.MustChangePassword = false
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, email, audit.ActionPasswordChanged, "Password updated")
	return nil
}

// ListUsers returns the admin view of every account.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	accounts, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]UserSummary, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, UserSummary{
			Email:            a.Email,
			Role:             a.Role,
			CreatedAt:        a.CreatedAt,
			LastLogin:        a.LastLogin,
			Locked:           a.Locked(now),
			TwoFactorEnabled: a.TwoFactorEnabled,
		})
	}
	return out, nil
}

// ActiveSessions counts stored sessions, including expired ones not yet accessed.
func (s *Service) ActiveSessions(ctx context.Context) (int, error) {
	return s.sessions.Count(ctx)
}

func (s *Service) refreshSessionGauge(ctx context.Context) {
	if n, err := s.sessions.Count(ctx); err == nil {
		obs.SetActiveSessions(n)
	}
}

func (s *Service) record(ctx context.Context, user, action, details string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, user, action, details); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
