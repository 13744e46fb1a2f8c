// Package setup provisions a SportAI installation: directory layout, environment file,
// license key, database schema, the first administrator, local TLS material and sample data.
package setup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/auth"
	"sportai.io/internal/facility"
	"sportai.io/internal/migrate"
	"sportai.io/internal/obs"
	"sportai.io/internal/store/sqldb"
)

// Version is printed in the banner.
const Version = "3.0.0"

// Directories created under the installation root. Each gets a .gitkeep.
var Directories = []string{
	"database",
	"logs",
	"audit_logs",
	"configurations",
	"uploads",
	"backups",
	"static",
	"ai_modules",
	"modules/facility_management",
	"modules/membership_management",
	"modules/event_management",
	"modules/financial_management",
	"modules/reporting",
	"tests",
	"docs",
	"scripts",
}

var requiredTables = []string{"audit_logs", "sessions", "users"}

// Options controls a wizard run.
type Options struct {
	// Root is the installation directory. Empty means the working directory.
	Root     string
	SkipDeps bool
	// Reset asks once for confirmation and then recreates the database without asking again.
	Reset bool
	Quiet bool
	// SampleData writes the demo configuration without asking.
	SampleData bool
	Prompter   Prompter
	Out        io.Writer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Report summarises what a run did, mainly for tests and the final summary.
type Report struct {
	Cancelled      bool
	EnvCreated     bool
	LicenseCreated bool
	DatabaseReset  bool
	AdminEmail     string
	AdminCreated   bool
	TLSCreated     bool
	SampleData     bool
	ChecksPassed   bool
}

// Wizard runs the provisioning steps in order.
type Wizard struct {
	root   string
	opts   Options
	prompt Prompter
	out    printer
	log    *zap.Logger
	now    func() time.Time

	env    map[string]string
	db     *sqldb.DB
	report Report
}

// New returns a Wizard for opts.
func New(opts Options) *Wizard {
	w := &Wizard{
		root:   opts.Root,
		opts:   opts,
		prompt: opts.Prompter,
		log:    opts.Logger,
		now:    opts.Now,
	}
	if w.root == "" {
		w.root = "."
	}
	if w.prompt == nil {
		w.prompt = Answers{}
	}
	if w.log == nil {
		w.log = obs.Logger()
	}
	if w.now == nil {
		w.now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	w.out = printer{w: out, quiet: opts.Quiet}
	return w
}

func (w *Wizard) path(p ...string) string {
	return filepath.Join(append([]string{w.root}, p...)...)
}

// Run executes every step. Errors from a step abort the run; smoke check failures only warn.
func (w *Wizard) Run(ctx context.Context) (Report, error) {
	defer w.close()

	w.out.banner("SportAI Suite Enterprise Edition - Setup Wizard",
		"Version: "+Version,
		"Copyright (c) 2025 SportAI Technologies")

	if w.opts.Reset {
		ok, err := w.prompt.Confirm("This will reset your installation. Continue?", false)
		if err != nil {
			return w.report, err
		}
		if !ok {
			w.out.plain("Setup cancelled.")
			w.report.Cancelled = true
			return w.report, nil
		}
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"runtime", w.checkRuntime},
		{"directories", w.createDirectories},
		{"dependencies", w.checkDependencies},
		{"environment", w.setupEnvironment},
		{"license", w.setupLicense},
		{"database", w.setupDatabase},
		{"admin", w.createAdmin},
		{"tls", w.setupTLS},
		{"sample data", w.createSampleData},
		{"checks", w.runChecks},
	}
	for _, s := range steps {
		if ctx.Err() != nil {
			return w.report, ErrInterrupted
		}
		if err := s.run(ctx); err != nil {
			if errors.Is(err, ErrInterrupted) {
				return w.report, err
			}
			return w.report, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	w.printNextSteps()
	return w.report, nil
}

func (w *Wizard) close() {
	if w.db != nil {
		_ = w.db.Close()
		w.db = nil
	}
}

func (w *Wizard) checkRuntime(context.Context) error {
	w.out.step("Checking runtime...")
	w.out.ok("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}

func (w *Wizard) createDirectories(context.Context) error {
	w.out.step("Creating directory structure...")
	for _, dir := range Directories {
		full := w.path(filepath.FromSlash(dir))
		if err := os.MkdirAll(full, 0o750); err != nil {
			return err
		}
		keep := filepath.Join(full, ".gitkeep")
		if !fileExists(keep) {
			if err := os.WriteFile(keep, nil, 0o644); err != nil {
				return err
			}
		}
		w.out.ok("Created %s/", dir)
	}
	return nil
}

// checkDependencies looks for the external programs used by the deployment steps printed at the end.
func (w *Wizard) checkDependencies(context.Context) error {
	if w.opts.SkipDeps {
		return nil
	}
	w.out.step("Checking dependencies...")
	for _, bin := range []string{"docker"} {
		if p, err := exec.LookPath(bin); err == nil {
			w.out.ok("%s found at %s", bin, p)
		} else {
			w.out.warn("%s not found. Container deployment will not be available.", bin)
		}
	}
	return nil
}

func (w *Wizard) setupEnvironment(context.Context) error {
	w.out.step("Setting up environment configuration...")
	created, fromTemplate, err := writeEnv(w.root)
	if err != nil {
		return err
	}
	switch {
	case !created:
		w.out.warn(".env file already exists. Skipping...")
	case fromTemplate:
		w.out.ok("Environment configuration created")
	default:
		w.out.ok("Basic environment configuration created")
	}
	w.report.EnvCreated = created

	env, err := readEnv(w.root)
	if err != nil {
		return fmt.Errorf("read .env: %w", err)
	}
	w.env = env
	return nil
}

func (w *Wizard) setupLicense(context.Context) error {
	created, err := writeLicenseKey(w.path("license.key"), w.env["LICENSE_KEY"])
	if err != nil {
		return err
	}
	if created {
		w.out.ok("License key written to license.key")
	}
	w.report.LicenseCreated = created
	return nil
}

func (w *Wizard) databaseURL() string {
	if u := strings.TrimSpace(w.env["DATABASE_URL"]); u != "" {
		return u
	}
	return defaultDatabaseURL
}

func (w *Wizard) setupDatabase(ctx context.Context) error {
	w.out.step("Setting up database...")
	url := w.databaseURL()
	target, err := sqldb.ParseURL(url, w.root)
	if err != nil {
		return err
	}

	reset := false
	if target.Dialect == sqldb.SQLite && fileExists(target.Path) {
		reset = w.opts.Reset
		if !reset {
			if reset, err = w.prompt.Confirm("Database already exists. Reset?", false); err != nil {
				return err
			}
		}
		if reset {
			if err := os.Remove(target.Path); err != nil {
				return fmt.Errorf("remove database: %w", err)
			}
		} else {
			w.out.plain("Keeping existing database.")
		}
	}

	db, err := sqldb.Open(url, w.root)
	if err != nil {
		return err
	}
	w.db = db
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	mgr := migrate.NewManager(db, migrate.WithClock(w.now))
	if target.Dialect == sqldb.Postgres && w.opts.Reset {
		if err := rollbackAll(ctx, mgr); err != nil {
			return err
		}
		reset = true
	}
	if err := mgr.Up(ctx); err != nil {
		return err
	}
	w.report.DatabaseReset = reset
	w.log.Info("database migrated", zap.String("dialect", string(db.Dialect)))
	w.out.ok("Database initialized")
	return nil
}

func rollbackAll(ctx context.Context, mgr *migrate.Manager) error {
	for {
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			return nil
		}
		if err := mgr.Down(ctx); err != nil {
			return err
		}
	}
}

// createAdmin writes the administrator to the relational users table and to the
// facility's credential file so both store selections can log in.
func (w *Wizard) createAdmin(ctx context.Context) error {
	w.out.step("Creating admin user...")
	email, password, err := w.prompt.AdminCredentials(DefaultAdminEmail)
	if err != nil {
		return err
	}
	email = auth.NormalizeEmail(email)
	w.report.AdminEmail = email

	salt, err := auth.LoadOrCreateSalt(w.path(".salt"))
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(salt)
	if err != nil {
		return err
	}
	facilityID, err := facility.LoadOrCreateID(w.path("configurations"))
	if err != nil {
		return err
	}
	auditLog := audit.NewLog(w.path("audit_logs"), audit.WithClock(w.now))

	stores := []auth.UserStore{
		sqldb.NewUserStore(w.db),
		auth.NewFileStore(w.path("database"), facilityID),
	}
	created := false
	for _, users := range stores {
		ok, err := w.provisionAdmin(ctx, users, hasher, auditLog, email, password)
		if err != nil {
			return err
		}
		created = created || ok
	}
	if created {
		w.out.ok("Admin user created: %s", email)
	} else {
		w.out.warn("User %s already exists", email)
	}
	w.report.AdminCreated = created
	return nil
}

func (w *Wizard) provisionAdmin(ctx context.Context, users auth.UserStore, hasher *auth.Hasher, auditLog *audit.Log, email, password string) (bool, error) {
	n, err := users.Count(ctx)
	if err != nil {
		return false, err
	}
	svc, err := auth.NewService(ctx, users, hasher,
		auth.WithClock(w.now),
		auth.WithAuditLog(auditLog),
		auth.WithTokenSecret(w.env["SECRET_KEY"]),
		auth.WithBootstrapAdmin(email, password),
		auth.WithLogger(w.log),
	)
	if err != nil {
		return false, err
	}
	if n == 0 {
		// An empty store provisions the bootstrap admin inside NewService.
		return true, nil
	}
	err = svc.AddUser(ctx, email, password, auth.RoleAdmin, nil)
	if errors.Is(err, auth.ErrUserExists) {
		return false, nil
	}
	return err == nil, err
}

func (w *Wizard) setupTLS(context.Context) error {
	w.out.step("Setting up SSL certificates...")
	created, err := writeSelfSigned(w.path("nginx", "ssl"), w.now())
	if err != nil {
		w.out.warn("Could not generate SSL certificates: %v", err)
		return nil
	}
	if !created {
		w.out.warn("SSL certificates already exist. Skipping...")
		return nil
	}
	w.report.TLSCreated = true
	w.out.ok("SSL certificates generated")
	return nil
}

type demoConfig struct {
	Facility struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Timezone string `json:"timezone"`
	} `json:"facility"`
	Subscription struct {
		Tier       facility.Tier `json:"tier"`
		ValidUntil string        `json:"valid_until"`
	} `json:"subscription"`
}

func (w *Wizard) createSampleData(context.Context) error {
	create := w.opts.SampleData
	if !create {
		var err error
		if create, err = w.prompt.Confirm("Create sample data for testing?", false); err != nil {
			return err
		}
	}
	if !create {
		return nil
	}
	w.out.step("Creating sample data...")
	var demo demoConfig
	demo.Facility.Name = "Demo Sports Complex"
	demo.Facility.Type = "multi-sport"
	demo.Facility.Timezone = "America/Chicago"
	demo.Subscription.Tier = facility.TierProfessional
	demo.Subscription.ValidUntil = "2025-12-31T23:59:59"

	data, err := json.MarshalIndent(demo, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(w.path("configurations", "demo_config.json"), data, 0o640); err != nil {
		return err
	}
	w.report.SampleData = true
	w.out.ok("Sample data created")
	return nil
}

// runChecks verifies the database and log directory. Failures are reported, not returned.
func (w *Wizard) runChecks(ctx context.Context) error {
	w.out.step("Running installation tests...")
	passed := true

	if err := w.checkDatabase(ctx); err != nil {
		w.out.fail("Database connection failed: %v", err)
		passed = false
	} else {
		w.out.ok("Database connection successful")
	}

	probe := w.path("logs", "test.tmp")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		w.out.fail("File permission issue: %v", err)
		passed = false
	} else if err := os.Remove(probe); err != nil {
		w.out.fail("File permission issue: %v", err)
		passed = false
	} else {
		w.out.ok("File permissions OK")
	}

	if passed {
		w.out.ok("All tests passed!")
	} else {
		w.out.warn("Some tests failed. Please check the errors above.")
	}
	w.report.ChecksPassed = passed
	return nil
}

func (w *Wizard) checkDatabase(ctx context.Context) error {
	if w.db == nil {
		return errors.New("database not opened")
	}
	if err := w.db.PingContext(ctx); err != nil {
		return err
	}
	tables, err := migrate.NewManager(w.db).Tables(ctx)
	if err != nil {
		return err
	}
	for _, t := range requiredTables {
		if !slices.Contains(tables, t) {
			return fmt.Errorf("missing table %s", t)
		}
	}
	return nil
}

func (w *Wizard) printNextSteps() {
	w.out.banner("Setup Complete!")
	lines := []string{
		labelStyle.Render("1. Start the application:"),
		"   sportai",
		"",
		labelStyle.Render("2. Access the application:"),
		"   http://localhost:8501",
		"",
		labelStyle.Render("3. Login with your admin credentials"),
		"",
		labelStyle.Render("4. Configure your facility:"),
		"   PATCH /v1/config  (section facility)",
		"",
		labelStyle.Render("5. Add users:"),
		"   POST /v1/users",
		"",
		stepStyle.Render("For production deployment:"),
		"   docker-compose up -d",
		"",
		okStyle.Render("Thank you for choosing SportAI Suite!"),
	}
	w.out.plain(okStyle.Render("Next Steps:") + "\n\n" + strings.Join(lines, "\n"))
}
