// Package config loads process settings from .env, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSessionTimeout = time.Hour
	DefaultHTTPAddr       = ":8501"
)

// Config is the resolved process configuration.
type Config struct {
	AppName        string        `yaml:"app_name"`
	AppEnv         string        `yaml:"app_env"`
	SecretKey      string        `yaml:"secret_key"`
	DatabaseURL    string        `yaml:"database_url"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LicenseKey     string        `yaml:"license_key"`
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	RedisURL       string        `yaml:"redis_url"`
	DataDir        string        `yaml:"data_dir"`
	LogLevel       string        `yaml:"log_level"`
	UserStore      string        `yaml:"user_store"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		AppName:        "SportAI Suite Enterprise",
		AppEnv:         "production",
		DatabaseURL:    "sqlite:///database/sportai.db",
		SessionTimeout: DefaultSessionTimeout,
		HTTPAddr:       DefaultHTTPAddr,
		DataDir:        ".",
		LogLevel:       "info",
		UserStore:      "file",
	}
}

// Load resolves configuration. envFile may be empty; a missing .env is not an error.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("SPORTAI_CONFIG")); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.AppName, "APP_NAME")
	setString(&cfg.AppEnv, "APP_ENV")
	setString(&cfg.SecretKey, "SECRET_KEY")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.LicenseKey, "LICENSE_KEY")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.UserStore, "USER_STORE")

	switch cfg.UserStore = strings.ToLower(cfg.UserStore); cfg.UserStore {
	case "file", "sql":
	default:
		return fmt.Errorf("config: USER_STORE must be file or sql, got %q", cfg.UserStore)
	}

	if raw := strings.TrimSpace(os.Getenv("SESSION_TIMEOUT")); raw != "" {
		d, err := parseSeconds(raw)
		if err != nil {
			return fmt.Errorf("config: SESSION_TIMEOUT: %w", err)
		}
		cfg.SessionTimeout = d
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	return nil
}

// parseSeconds accepts a bare integer number of seconds or a Go duration string.
func parseSeconds(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Path joins p onto the data directory.
func (c Config) Path(p ...string) string {
	return filepath.Join(append([]string{c.DataDir}, p...)...)
}

// Production reports whether APP_ENV selects production behaviour.
func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}
