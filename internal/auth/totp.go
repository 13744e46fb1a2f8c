package auth

import (
	"context"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"sportai.io/internal/audit"
)

const totpIssuer = "SportAI Suite"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPEnrollment is returned when a user starts two-factor enrollment.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// EnableTOTP generates a secret for email. Two-factor stays off until ConfirmTOTP succeeds.
// An account that already has two-factor on is rejected with ErrTOTPEnabled.
func (s *Service) EnableTOTP(ctx context.Context, email string) (TOTPEnrollment, error) {
	email = NormalizeEmail(email)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: totpIssuer, AccountName: email})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	_, err = s.users.Update(ctx, email, func(u *UserRecord) error {
		if u.TwoFactorEnabled {
			return ErrTOTPEnabled
		}
		u.TOTPSecret = key.Secret()
		return nil
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	return TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ConfirmTOTP turns on two-factor once code matches the pending secret.
func (s *Service) ConfirmTOTP(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)
	_, err := s.users.Update(ctx, email, func(u *UserRecord) error {
		if u.TOTPSecret == "" {
			return ErrTOTPNotEnrolled
		}
		if !s.validateTOTP(u.TOTPSecret, code) {
			return invalid("Invalid verification code")
		}
		u.TwoFactorEnabled = true
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, email, audit.ActionTwoFactorEnabled, "TOTP enabled")
	return nil
}

func (s *Service) validateTOTP(secret, code string) bool {
	if secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now().UTC(), totpOpts)
	return err == nil && ok
}
