package facility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/obs"
)

var (
	// ErrUnknownSetting is returned by Update for a section/key pair the document does not have.
	ErrUnknownSetting = errors.New("facility: unknown setting")
	// ErrInvalidValue is returned by Update when the value does not fit the setting's type.
	ErrInvalidValue = errors.New("facility: invalid value")
)

const idFile = "facility_id.txt"

// LoadOrCreateID returns the facility id stored in dir, creating a UUID on first run.
func LoadOrCreateID(dir string) (string, error) {
	path := filepath.Join(dir, idFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("facility: read id: %w", err)
	}
	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("facility: create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0o640); err != nil {
		return "", fmt.Errorf("facility: write id: %w", err)
	}
	return id, nil
}

// Store holds one facility's configuration in memory and on disk.
type Store struct {
	dir   string
	id    string
	now   func() time.Time
	audit *audit.Log
	log   *zap.Logger

	mu  sync.RWMutex
	cfg Config
}

// Option configures Store.
type Option func(*Store)

// WithFacilityID pins the facility id instead of reading facility_id.txt.
func WithFacilityID(id string) Option {
	return func(s *Store) { s.id = strings.TrimSpace(id) }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAuditLog records configuration changes.
func WithAuditLog(l *audit.Log) Option {
	return func(s *Store) { s.audit = l }
}

// Open loads the facility configuration under dir, writing defaults for a new facility.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{dir: dir, now: time.Now, log: obs.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		id, err := LoadOrCreateID(dir)
		if err != nil {
			return nil, err
		}
		s.id = id
	}

	data, err := os.ReadFile(s.Path())
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.cfg = DefaultConfig(s.now())
		if err := s.save(s.cfg); err != nil {
			return nil, err
		}
		s.log.Info("created default facility configuration", zap.String("facility_id", s.id))
	case err != nil:
		return nil, fmt.Errorf("facility: read config: %w", err)
	default:
		if err := json.Unmarshal(data, &s.cfg); err != nil {
			return nil, fmt.Errorf("facility: decode %s: %w", s.Path(), err)
		}
	}
	return s, nil
}

// ID returns the facility id.
func (s *Store) ID() string { return s.id }

// Path returns the configuration file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.id+"_config.json")
}

// Config returns a snapshot of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscription returns the current subscription block.
func (s *Store) Subscription() Subscription {
	return s.Config().Subscription
}

// Document returns the configuration as nested section/key maps, the shape Update addresses.
func (s *Store) Document() (map[string]map[string]any, error) {
	return toDocument(s.Config())
}

// Update sets section.key to value. Only existing pairs can be changed and the value must
// decode into the setting's type; otherwise the stored document is left untouched.
func (s *Store) Update(ctx context.Context, actor, section, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := toDocument(s.cfg)
	if err != nil {
		return err
	}
	sec, ok := doc[section]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownSetting, section, key)
	}
	if _, ok := sec[key]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownSetting, section, key)
	}
	sec[key] = value

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var next Config
	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, section, key, err)
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.cfg = next

	s.log.Info("configuration updated", zap.String("section", section), zap.String("key", key), zap.Any("value", value))
	if s.audit != nil {
		if err := s.audit.Record(ctx, actor, audit.ActionConfigUpdated, fmt.Sprintf("%s.%s = %v", section, key, value)); err != nil {
			s.log.Warn("audit write failed", zap.String("action", audit.ActionConfigUpdated), zap.Error(err))
		}
	}
	return nil
}

// Replace overwrites the whole document, used by provisioning.
func (s *Store) Replace(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *Store) save(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("facility: create config dir: %w", err)
	}
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("facility: write config: %w", err)
	}
	return os.Rename(tmp, s.Path())
}

func toDocument(cfg Config) (map[string]map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
