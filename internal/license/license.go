// Package license validates the installation license and gates features by subscription tier.
package license

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/facility"
	"sportai.io/internal/obs"
)

// WarningWindow is how close to expiry a license starts reporting a warning.
const WarningWindow = 7 * 24 * time.Hour

const (
	FeatureBasicManagement    = "basic_management"
	FeatureReporting          = "reporting"
	FeatureScheduling         = "scheduling"
	FeatureAIModules          = "ai_modules"
	FeatureAdvancedAnalytics  = "advanced_analytics"
	FeatureAPIAccess          = "api_access"
	FeatureMultiFacility      = "multi_facility"
	FeatureWhiteLabel         = "white_label"
	FeatureCustomIntegrations = "custom_integrations"
)

var (
	starterFeatures      = []string{FeatureBasicManagement, FeatureReporting, FeatureScheduling}
	professionalFeatures = append(slices.Clone(starterFeatures), FeatureAIModules, FeatureAdvancedAnalytics, FeatureAPIAccess)
	enterpriseFeatures   = append(slices.Clone(professionalFeatures), FeatureMultiFacility, FeatureWhiteLabel, FeatureCustomIntegrations)

	featureMatrix = map[facility.Tier][]string{
		facility.TierStarter:      starterFeatures,
		facility.TierProfessional: professionalFeatures,
		facility.TierEnterprise:   enterpriseFeatures,
	}
)

// Features returns the features included in tier; unknown tiers have none.
func Features(tier facility.Tier) []string {
	return slices.Clone(featureMatrix[tier])
}

// AllFeatures lists every gated feature in display order.
func AllFeatures() []string {
	return slices.Clone(enterpriseFeatures)
}

// SubscriptionSource supplies the current subscription, usually *facility.Store.
type SubscriptionSource interface {
	Subscription() facility.Subscription
}

// Status is the outcome of Validate.
type Status struct {
	Valid         bool      `json:"valid"`
	Message       string    `json:"message"`
	Warning       bool      `json:"warning"`
	ValidUntil    time.Time `json:"valid_until,omitempty"`
	DaysRemaining int       `json:"days_remaining"`
}

// Manager reads license.key and the facility subscription.
type Manager struct {
	keyPath string
	source  SubscriptionSource
	now     func() time.Time
	log     *zap.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager returns a Manager for the key file at keyPath.
func NewManager(keyPath string, source SubscriptionSource, opts ...Option) *Manager {
	m := &Manager{keyPath: keyPath, source: source, now: time.Now, log: obs.Logger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// KeyPath returns the license file location.
func (m *Manager) KeyPath() string { return m.keyPath }

// Validate checks the license file and subscription expiry.
//
// A missing file is invalid. A subscription past valid_until is invalid. Fewer than
// seven whole days remaining is valid with a warning.
func (m *Manager) Validate() Status {
	key, err := m.readKey()
	if errors.Is(err, os.ErrNotExist) {
		return Status{Message: "No license file found"}
	}
	if err != nil {
		m.log.Error("license validation error", zap.Error(err))
		return Status{Message: "Invalid license"}
	}
	if key == "" {
		return Status{Message: "Invalid license"}
	}

	until := m.source.Subscription().ValidUntil.Time
	if until.IsZero() {
		return Status{Message: "Invalid license"}
	}
	now := m.now()
	if now.After(until) {
		return Status{
			ValidUntil: until,
			Message:    fmt.Sprintf("License expired on %s", until.Format(time.DateOnly)),
		}
	}

	days := int(until.Sub(now) / (24 * time.Hour))
	st := Status{Valid: true, ValidUntil: until, DaysRemaining: days}
	if until.Sub(now) < WarningWindow {
		st.Warning = true
		st.Message = fmt.Sprintf("License expires in %d days", days)
		return st
	}
	st.Message = fmt.Sprintf("License valid until %s", until.Format(time.DateOnly))
	return st
}

// CheckFeatureAccess reports whether the current tier includes feature.
func (m *Manager) CheckFeatureAccess(feature string) bool {
	return slices.Contains(featureMatrix[m.source.Subscription().Tier], feature)
}

// Info is the license summary shown to administrators.
type Info struct {
	Status        Status          `json:"status"`
	Tier          facility.Tier   `json:"tier"`
	Seats         int             `json:"seats"`
	DaysRemaining int             `json:"days_remaining"`
	Key           string          `json:"key"`
	Features      map[string]bool `json:"features"`
	CanUpgrade    bool            `json:"can_upgrade"`
}

// Info combines validation, subscription and feature availability.
func (m *Manager) Info() Info {
	sub := m.source.Subscription()
	features := make(map[string]bool, len(enterpriseFeatures))
	for _, f := range enterpriseFeatures {
		features[f] = m.CheckFeatureAccess(f)
	}
	key, _ := m.readKey()
	return Info{
		Status:        m.Validate(),
		Tier:          sub.Tier,
		Seats:         sub.Seats,
		DaysRemaining: int(sub.ValidUntil.Sub(m.now()) / (24 * time.Hour)),
		Key:           MaskKey(key),
		Features:      features,
		CanUpgrade:    sub.Tier != facility.TierEnterprise,
	}
}

// MaskKey hides all but the last four characters of a license key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (m *Manager) readKey() (string, error) {
	data, err := os.ReadFile(m.keyPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
