package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"

	"sportai.io/internal/ids"
)

const (
	// Pepper is mixed into every hash in addition to the installation salt.
	Pepper = "SportAI_Secure_2025"

	// HashIterations is the PBKDF2-SHA256 work factor.
	HashIterations = 100_000

	hashKeyLength = sha256.Size
	saltBytes     = 32
)

// Hasher derives password hashes from the password, the installation salt and Pepper.
//
// The salt is shared by every account of an installation; there is no per-user salt,
// so equal passwords produce equal hashes. Stored hashes depend on this scheme, so
// changing it needs a rehash-on-login migration.
type Hasher struct {
	salt string
}

// NewHasher returns a Hasher using salt.
func NewHasher(salt string) (*Hasher, error) {
	salt = strings.TrimSpace(salt)
	if salt == "" {
		return nil, errors.New("auth: salt is empty")
	}
	return &Hasher{salt: salt}, nil
}

// LoadOrCreateSalt reads the salt file at path, creating it with a random value on first run.
func LoadOrCreateSalt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if salt := strings.TrimSpace(string(data)); salt != "" {
			return salt, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("auth: read salt: %w", err)
	}

	salt := ids.Hex(saltBytes)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("auth: create salt dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(salt), 0o600); err != nil {
		return "", fmt.Errorf("auth: write salt: %w", err)
	}
	return salt, nil
}

// Hash returns the hex encoded derived key for password. It is deterministic per installation.
func (h *Hasher) Hash(password string) string {
	combined := password + h.salt + Pepper
	key := pbkdf2.Key([]byte(combined), []byte(h.salt), HashIterations, hashKeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// Verify recomputes the hash of candidate and compares it with storedHash in constant time.
func (h *Hasher) Verify(storedHash, candidate string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(h.Hash(candidate))) == 1
}

const specialCharacters = `!@#$%^&*(),.?":{}|<>`

// PasswordPolicy describes the strength rules.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy requires 8 characters and all four character classes.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:        8,
	RequireUppercase: true,
	RequireLowercase: true,
	RequireDigit:     true,
	RequireSpecial:   true,
}

// Validate returns every violated rule, in a fixed order. An empty result means the password is acceptable.
func (p PasswordPolicy) Validate(password string) []string {
	var (
		violations                   []string
		hasUpper, hasLower, hasDigit bool
		hasSpecial                   bool
	)
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(specialCharacters, r) {
			hasSpecial = true
		}
	}

	if utf8.RuneCountInString(password) < p.MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters", p.MinLength))
	}
	if p.RequireUppercase && !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, "Password must contain at least one digit")
	}
	if p.RequireSpecial && !hasSpecial {
		violations = append(violations, "Password must contain at least one special character")
	}
	return violations
}

// ValidatePasswordStrength checks password against DefaultPasswordPolicy.
func ValidatePasswordStrength(password string) (bool, []string) {
	violations := DefaultPasswordPolicy.Validate(password)
	return len(violations) == 0, violations
}
