package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrUserExists         = errors.New("User already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrTOTPRequired       = errors.New("auth: verification code required")
	ErrTOTPNotEnrolled    = errors.New("auth: two-factor enrollment not started")
	ErrTOTPEnabled        = errors.New("auth: two-factor already enabled")
	ErrUnauthorized       = errors.New("auth: unauthorized")
)

// ValidationError carries every human-readable rule a request violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "\n")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(msg ...string) error {
	return &ValidationError{Violations: msg}
}

// LoginError is returned by Authenticate with the message shown to the user.
type LoginError struct {
	Err        error
	Message    string
	Remaining  int
	RetryAfter time.Duration
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }
