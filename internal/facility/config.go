// Package facility owns the per-facility identity and configuration document.
package facility

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tier names a subscription level.
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Timestamp accepts RFC 3339 as well as naive ISO-8601 ("2025-12-31T23:59:59", read as UTC).
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("facility: invalid timestamp %q", raw)
}

type Settings struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Timezone string `json:"timezone"`
	Currency string `json:"currency"`
	Language string `json:"language"`
}

type Features struct {
	AIModules         bool `json:"ai_modules"`
	AdvancedAnalytics bool `json:"advanced_analytics"`
	MultiFacility     bool `json:"multi_facility"`
	APIAccess         bool `json:"api_access"`
	WhiteLabel        bool `json:"white_label"`
}

type Limits struct {
	MaxUsers          int `json:"max_users"`
	MaxFacilities     int `json:"max_facilities"`
	MaxEventsPerMonth int `json:"max_events_per_month"`
	MaxMembers        int `json:"max_members"`
	StorageGB         int `json:"storage_gb"`
}

type Branding struct {
	PrimaryColor   string  `json:"primary_color"`
	SecondaryColor string  `json:"secondary_color"`
	LogoURL        *string `json:"logo_url"`
	FacilityName   string  `json:"facility_name"`
}

type Subscription struct {
	Tier       Tier      `json:"tier"`
	ValidUntil Timestamp `json:"valid_until"`
	Seats      int       `json:"seats"`
}

type Integrations struct {
	PaymentGateway     *string `json:"payment_gateway"`
	EmailProvider      *string `json:"email_provider"`
	SMSProvider        *string `json:"sms_provider"`
	CalendarSync       bool    `json:"calendar_sync"`
	AccountingSoftware *string `json:"accounting_software"`
}

// Config is the document stored in <id>_config.json.
type Config struct {
	Facility     Settings     `json:"facility"`
	Features     Features     `json:"features"`
	Limits       Limits       `json:"limits"`
	Branding     Branding     `json:"branding"`
	Subscription Subscription `json:"subscription"`
	Integrations Integrations `json:"integrations"`
}

// DefaultConfig is written for a new facility: a professional trial valid for 30 days from now.
func DefaultConfig(now time.Time) Config {
	smtp := "smtp"
	return Config{
		Facility: Settings{
			Name:     "Sports Complex",
			Type:     "multi-sport",
			Timezone: "America/Chicago",
			Currency: "USD",
			Language: "en",
		},
		Features: Features{
			AIModules:         true,
			AdvancedAnalytics: true,
			APIAccess:         true,
			WhiteLabel:        true,
		},
		Limits: Limits{
			MaxUsers:          100,
			MaxFacilities:     5,
			MaxEventsPerMonth: 1000,
			MaxMembers:        10000,
			StorageGB:         100,
		},
		Branding: Branding{
			PrimaryColor:   "#1E40AF",
			SecondaryColor: "#3B82F6",
			FacilityName:   "Your Sports Complex",
		},
		Subscription: Subscription{
			Tier:       TierProfessional,
			ValidUntil: Timestamp{now.Add(30 * 24 * time.Hour).UTC()},
			Seats:      10,
		},
		Integrations: Integrations{
			EmailProvider: &smtp,
			CalendarSync:  true,
		},
	}
}
