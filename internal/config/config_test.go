package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"APP_NAME", "APP_ENV", "SECRET_KEY", "DATABASE_URL", "SESSION_TIMEOUT",
		"LICENSE_KEY", "HTTP_ADDR", "GRPC_ADDR", "REDIS_URL", "DATA_DIR", "LOG_LEVEL", "USER_STORE", "SPORTAI_CONFIG"} {
		// godotenv never overrides a variable that is present, even when empty.
		key := k
		old, ok := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if ok {
				_ = os.Setenv(key, old)
				return
			}
			_ = os.Unsetenv(key)
		})
	}
}

func TestLoadDefaultsWithoutEnvFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.True(t, cfg.Production())
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SECRET_KEY=from-file\nSESSION_TIMEOUT=1800\nAPP_ENV=development\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":9000")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.SecretKey)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.False(t, cfg.Production())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yml := filepath.Join(dir, "sportai.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("app_name: Arena\ndata_dir: /srv/sportai\nsession_timeout: 2h\n"), 0o600))
	t.Setenv("SPORTAI_CONFIG", yml)
	t.Setenv("DATA_DIR", "/var/lib/sportai")

	cfg, err := Load(filepath.Join(dir, "none.env"))
	require.NoError(t, err)
	assert.Equal(t, "Arena", cfg.AppName)
	assert.Equal(t, 2*time.Hour, cfg.SessionTimeout)
	assert.Equal(t, "/var/lib/sportai", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/sportai", "logs"), cfg.Path("logs"))
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_TIMEOUT", "-5")
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
}

func TestLoadUserStore(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.UserStore)

	t.Setenv("USER_STORE", "SQL")
	cfg, err = Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.UserStore)

	t.Setenv("USER_STORE", "ldap")
	_, err = Load(filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}
