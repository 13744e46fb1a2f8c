// Package session holds authenticated session state and the timeout policy applied to it.
package session

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTimeout is the maximum age of a session measured from login.
	DefaultTimeout = time.Hour
	// PurgeGrace keeps an expired session around so a returning client is told it
	// expired before the session is purged.
	PurgeGrace = 5 * time.Minute
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrExpired  = errors.New("session: expired")
)

// State is the server-side view of a logged-in user.
type State struct {
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	Permissions        []string  `json:"permissions"`
	LoginTime          time.Time `json:"login_time"`
	SessionToken       string    `json:"session_token"`
	SessionID          string    `json:"session_id"`
	MustChangePassword bool      `json:"must_change_password"`
}

// Store keeps sessions by id. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, s State) error
	Get(ctx context.Context, id string) (State, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Purger is implemented by stores that can drop sessions in bulk. Purge removes every
// session whose login happened before loginBefore and returns the removed states.
type Purger interface {
	Purge(ctx context.Context, loginBefore time.Time) ([]State, error)
}

// Validator applies the timeout policy. It is checked on access. Purging only reclaims
// sessions the validator already rejects.
type Validator struct {
	timeout time.Duration
	now     func() time.Time
}

// NewValidator returns a Validator. A non-positive timeout selects DefaultTimeout; nil now selects time.Now.
func NewValidator(timeout time.Duration, now func() time.Time) Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if now == nil {
		now = time.Now
	}
	return Validator{timeout: timeout, now: now}
}

// Timeout returns the configured session lifetime.
func (v Validator) Timeout() time.Duration { return v.timeout }

// Check returns ErrExpired once more than the timeout has elapsed since login.
// A session exactly at the timeout is still valid.
func (v Validator) Check(s State) error {
	if v.now().Sub(s.LoginTime) > v.timeout {
		return ErrExpired
	}
	return nil
}

// Remaining reports how long s stays valid; zero once expired.
func (v Validator) Remaining(s State) time.Duration {
	left := v.timeout - v.now().Sub(s.LoginTime)
	if left < 0 {
		return 0
	}
	return left
}
