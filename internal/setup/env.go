package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"sportai.io/internal/ids"
)

const (
	secretPlaceholder  = "your-very-secure-secret-key-here-change-this"
	licensePlaceholder = "your-license-key-here"

	defaultDatabaseURL = "sqlite:///database/sportai.db"
)

// writeEnv creates <root>/.env. An existing file is left alone and reported with created=false.
// When .env.example exists it is copied with the secret and license placeholders filled in.
func writeEnv(root string) (created, fromTemplate bool, err error) {
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); err == nil {
		return false, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, false, err
	}

	var content string
	tmpl, err := os.ReadFile(filepath.Join(root, ".env.example"))
	switch {
	case err == nil:
		fromTemplate = true
		content = strings.ReplaceAll(string(tmpl), secretPlaceholder, ids.Token(32))
		content = strings.ReplaceAll(content, licensePlaceholder, ids.TrialLicenseKey())
		if _, err := godotenv.Unmarshal(content); err != nil {
			return false, false, fmt.Errorf("parse .env.example: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		body, err := godotenv.Marshal(map[string]string{
			"APP_NAME":        "SportAI Suite Enterprise",
			"APP_ENV":         "production",
			"SECRET_KEY":      ids.Token(32),
			"DATABASE_URL":    defaultDatabaseURL,
			"SESSION_TIMEOUT": "3600",
			"LICENSE_KEY":     ids.TrialLicenseKey(),
		})
		if err != nil {
			return false, false, err
		}
		content = "# SportAI Suite Configuration\n" + body + "\n"
	default:
		return false, false, err
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, false, fmt.Errorf("write .env: %w", err)
	}
	return true, fromTemplate, nil
}

// readEnv parses <root>/.env. A missing file yields an empty map.
func readEnv(root string) (map[string]string, error) {
	env, err := godotenv.Read(filepath.Join(root, ".env"))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	return env, err
}

// writeLicenseKey stores key in path unless a license file already exists.
func writeLicenseKey(path, key string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if strings.TrimSpace(key) == "" {
		key = ids.TrialLicenseKey()
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return false, fmt.Errorf("write license key: %w", err)
	}
	return true, nil
}
