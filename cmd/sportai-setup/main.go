package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sportai.io/internal/obs"
	"sportai.io/internal/setup"
)

var (
	skipDeps       bool
	reset          bool
	quiet          bool
	nonInteractive bool
	sampleData     bool
	adminEmail     string
	adminPassword  string
	rootDir        string
)

var rootCmd = &cobra.Command{
	Use:   "sportai-setup",
	Short: "SportAI Suite Setup Wizard",
	Long: `sportai-setup prepares a SportAI installation: directory layout, .env with a
generated secret and trial license, database schema, the first administrator,
self-signed TLS material for local use and optional demo data.

Examples:
  # Interactive setup in the current directory
  sportai-setup

  # Unattended setup
  sportai-setup --non-interactive --admin-email admin@club.com --admin-password 'S3cure!pass'

  # Recreate the database of an existing installation
  sportai-setup --reset`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSetup,
}

func init() {
	rootCmd.Flags().BoolVar(&skipDeps, "skip-deps", false, "skip the dependency check")
	rootCmd.Flags().BoolVar(&reset, "reset", false, "reset the existing installation")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
	rootCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; take answers from flags")
	rootCmd.Flags().BoolVar(&sampleData, "sample-data", false, "create demo configuration without asking")
	rootCmd.Flags().StringVar(&adminEmail, "admin-email", "", "admin email (default "+setup.DefaultAdminEmail+")")
	rootCmd.Flags().StringVar(&adminPassword, "admin-password", "", "admin password (non-interactive mode)")
	rootCmd.Flags().StringVar(&rootDir, "dir", ".", "installation directory")
}

func runSetup(cmd *cobra.Command, _ []string) error {
	logger, err := obs.NewLogger("warn")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	restore := obs.SetLogger(logger)
	defer restore()

	var prompter setup.Prompter = setup.Interactive{}
	if nonInteractive || !setup.IsInteractive() {
		prompter = setup.Answers{AdminEmail: adminEmail, AdminPassword: adminPassword, Yes: reset}
	}

	wiz := setup.New(setup.Options{
		Root:       rootDir,
		SkipDeps:   skipDeps,
		Reset:      reset,
		Quiet:      quiet,
		SampleData: sampleData,
		Prompter:   prompter,
		Out:        cmd.OutOrStdout(),
		Logger:     logger,
	})
	rep, err := wiz.Run(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("setup finished", zap.Bool("cancelled", rep.Cancelled), zap.Bool("checks_passed", rep.ChecksPassed))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, setup.ErrInterrupted) || ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nSetup interrupted by user")
		} else {
			fmt.Fprintf(os.Stderr, "\nSetup failed: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
