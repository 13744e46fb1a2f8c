package setup

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"sportai.io/internal/auth"
)

// DefaultAdminEmail is offered when the operator does not type an address.
const DefaultAdminEmail = "admin@sportai.com"

// ErrInterrupted is returned when the operator aborts a prompt.
var ErrInterrupted = errors.New("setup: interrupted")

// Prompter asks the operator for the answers the wizard needs.
type Prompter interface {
	Confirm(question string, def bool) (bool, error)
	AdminCredentials(defaultEmail string) (email, password string, err error)
}

// Interactive prompts on the terminal with huh forms.
type Interactive struct{}

func (Interactive) Confirm(question string, def bool) (bool, error) {
	answer := def
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&answer),
	))
	if err := form.Run(); err != nil {
		return false, promptErr(err)
	}
	return answer, nil
}

func (Interactive) AdminCredentials(defaultEmail string) (string, string, error) {
	email := defaultEmail
	var password, confirm string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Admin email").
			Placeholder(defaultEmail).
			Value(&email),
		huh.NewInput().
			Title("Admin password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(validatePassword),
		huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Value(&confirm).
			Validate(func(v string) error {
				if v != password {
					return errors.New("Passwords do not match")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return "", "", promptErr(err)
	}
	if strings.TrimSpace(email) == "" {
		email = defaultEmail
	}
	return email, password, nil
}

func promptErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrInterrupted
	}
	return fmt.Errorf("prompt failed: %w", err)
}

// Answers is a non-interactive Prompter fed from command-line flags.
type Answers struct {
	AdminEmail    string
	AdminPassword string
	// Yes accepts every confirmation. Otherwise the question's default is used.
	Yes bool
}

func (a Answers) Confirm(_ string, def bool) (bool, error) {
	if a.Yes {
		return true, nil
	}
	return def, nil
}

func (a Answers) AdminCredentials(defaultEmail string) (string, string, error) {
	email := strings.TrimSpace(a.AdminEmail)
	if email == "" {
		email = defaultEmail
	}
	if a.AdminPassword == "" {
		return "", "", errors.New("admin password is required in non-interactive mode")
	}
	if err := validatePassword(a.AdminPassword); err != nil {
		return "", "", err
	}
	return email, a.AdminPassword, nil
}

func validatePassword(pw string) error {
	if ok, violations := auth.ValidatePasswordStrength(pw); !ok {
		return errors.New(strings.Join(violations, "\n"))
	}
	return nil
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
