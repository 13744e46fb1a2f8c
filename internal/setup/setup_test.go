package setup

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sportai.io/internal/auth"
	"sportai.io/internal/facility"
	"sportai.io/internal/store/sqldb"
)

const adminPassword = "Str0ng!Pass"

func newWizard(t *testing.T, root string, opts Options) (*Wizard, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.Root = root
	opts.Out = &out
	opts.Logger = zap.NewNop()
	opts.SkipDeps = true
	if opts.Prompter == nil {
		opts.Prompter = Answers{AdminEmail: "Owner@Club.com", AdminPassword: adminPassword}
	}
	return New(opts), &out
}

func login(t *testing.T, root string, users func(*auth.Hasher) auth.UserStore) {
	t.Helper()
	ctx := context.Background()
	salt, err := auth.LoadOrCreateSalt(filepath.Join(root, ".salt"))
	require.NoError(t, err)
	hasher, err := auth.NewHasher(salt)
	require.NoError(t, err)
	svc, err := auth.NewService(ctx, users(hasher), hasher, auth.WithTokenSecret("test-secret"), auth.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	st, err := svc.Authenticate(ctx, auth.LoginRequest{Email: "owner@club.com", Password: adminPassword})
	require.NoError(t, err)
	assert.Equal(t, string(auth.RoleAdmin), st.Role)
	assert.False(t, st.MustChangePassword)
}

func TestRunProvisionsFreshInstall(t *testing.T) {
	root := t.TempDir()
	w, out := newWizard(t, root, Options{SampleData: true})

	rep, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.EnvCreated)
	assert.True(t, rep.LicenseCreated)
	assert.True(t, rep.AdminCreated)
	assert.True(t, rep.TLSCreated)
	assert.True(t, rep.SampleData)
	assert.True(t, rep.ChecksPassed, out.String())
	assert.Equal(t, "owner@club.com", rep.AdminEmail)

	for _, dir := range Directories {
		assert.FileExists(t, filepath.Join(root, filepath.FromSlash(dir), ".gitkeep"))
	}

	env, err := godotenv.Read(filepath.Join(root, ".env"))
	require.NoError(t, err)
	assert.NotEmpty(t, env["SECRET_KEY"])
	assert.Equal(t, "sqlite:///database/sportai.db", env["DATABASE_URL"])
	assert.Equal(t, "3600", env["SESSION_TIMEOUT"])
	assert.Regexp(t, `^TRIAL-[0-9A-F]{32}$`, env["LICENSE_KEY"])

	key, err := os.ReadFile(filepath.Join(root, "license.key"))
	require.NoError(t, err)
	assert.Equal(t, env["LICENSE_KEY"], strings.TrimSpace(string(key)))

	certPEM, err := os.ReadFile(filepath.Join(root, "nginx", "ssl", "cert.pem"))
	require.NoError(t, err)
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cert.Subject.CommonName)
	assert.Equal(t, []string{"SportAI"}, cert.Subject.Organization)
	info, err := os.Stat(filepath.Join(root, "nginx", "ssl", "key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var demo map[string]map[string]any
	data, err := os.ReadFile(filepath.Join(root, "configurations", "demo_config.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &demo))
	assert.Equal(t, "Demo Sports Complex", demo["facility"]["name"])
	assert.Equal(t, "2025-12-31T23:59:59", demo["subscription"]["valid_until"])

	assert.NoFileExists(t, filepath.Join(root, "logs", "test.tmp"))

	facilityID, err := facility.LoadOrCreateID(filepath.Join(root, "configurations"))
	require.NoError(t, err)
	login(t, root, func(*auth.Hasher) auth.UserStore {
		return auth.NewFileStore(filepath.Join(root, "database"), facilityID)
	})

	db, err := sqldb.Open("sqlite:///database/sportai.db", root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	login(t, root, func(*auth.Hasher) auth.UserStore { return sqldb.NewUserStore(db) })
}

func TestRunTwiceKeepsExistingState(t *testing.T) {
	root := t.TempDir()
	w, _ := newWizard(t, root, Options{})
	_, err := w.Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(root, ".env"))
	require.NoError(t, err)

	w, out := newWizard(t, root, Options{})
	rep, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, rep.EnvCreated)
	assert.False(t, rep.LicenseCreated)
	assert.False(t, rep.DatabaseReset)
	assert.False(t, rep.AdminCreated)
	assert.False(t, rep.TLSCreated)
	assert.False(t, rep.SampleData)
	assert.True(t, rep.ChecksPassed)

	second, err := os.ReadFile(filepath.Join(root, ".env"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, out.String(), ".env file already exists")
	assert.Contains(t, out.String(), "Keeping existing database.")
	assert.Contains(t, out.String(), "User owner@club.com already exists")
}

func TestResetDeclinedCancelsSetup(t *testing.T) {
	root := t.TempDir()
	w, out := newWizard(t, root, Options{Reset: true})

	rep, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Cancelled)
	assert.Contains(t, out.String(), "Setup cancelled.")
	assert.NoDirExists(t, filepath.Join(root, "database"))
}

func TestResetRecreatesDatabase(t *testing.T) {
	root := t.TempDir()
	w, _ := newWizard(t, root, Options{})
	_, err := w.Run(context.Background())
	require.NoError(t, err)

	w, _ = newWizard(t, root, Options{
		Reset:    true,
		Prompter: Answers{AdminEmail: "owner@club.com", AdminPassword: adminPassword, Yes: true},
	})
	rep, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.DatabaseReset)
	// The relational table was recreated empty, so the admin is provisioned again.
	assert.True(t, rep.AdminCreated)
	assert.True(t, rep.SampleData)
}

func TestNonInteractiveRequiresAdminPassword(t *testing.T) {
	root := t.TempDir()
	w, _ := newWizard(t, root, Options{Prompter: Answers{AdminEmail: "owner@club.com"}})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin:")
	assert.Contains(t, err.Error(), "admin password is required")
}

func TestWeakAdminPasswordRejected(t *testing.T) {
	_, _, err := Answers{AdminPassword: "password"}.AdminCredentials(DefaultAdminEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password must contain at least one uppercase letter")

	email, pw, err := Answers{AdminPassword: adminPassword}.AdminCredentials(DefaultAdminEmail)
	require.NoError(t, err)
	assert.Equal(t, DefaultAdminEmail, email)
	assert.Equal(t, adminPassword, pw)
}

func TestCancelledContextInterrupts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, _ := newWizard(t, t.TempDir(), Options{})

	_, err := w.Run(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestWriteEnvFromTemplate(t *testing.T) {
	root := t.TempDir()
	tmpl := "APP_NAME=SportAI\nSECRET_KEY=your-very-secure-secret-key-here-change-this\nLICENSE_KEY=your-license-key-here\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env.example"), []byte(tmpl), 0o600))

	created, fromTemplate, err := writeEnv(root)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, fromTemplate)

	env, err := readEnv(root)
	require.NoError(t, err)
	assert.Equal(t, "SportAI", env["APP_NAME"])
	assert.NotEqual(t, secretPlaceholder, env["SECRET_KEY"])
	assert.Len(t, env["SECRET_KEY"], 43)
	assert.True(t, strings.HasPrefix(env["LICENSE_KEY"], "TRIAL-"))

	created, _, err = writeEnv(root)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestQuietSuppressesProgress(t *testing.T) {
	var buf bytes.Buffer
	p := printer{w: &buf, quiet: true}
	p.step("Creating directory structure...")
	p.ok("done")
	assert.Empty(t, buf.String())

	p.warn(".env file already exists. Skipping...")
	assert.Contains(t, buf.String(), ".env file already exists")
}
