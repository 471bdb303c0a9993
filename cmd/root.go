// Package cmd defines the CLI commands for the jobscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/app"
	"github.com/JakeFAU/jobscraper/internal/config"
	"github.com/JakeFAU/jobscraper/internal/logging"
	"github.com/JakeFAU/jobscraper/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what commands need from the service container. Tests swap in their
// own implementation through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Runner() *pipeline.Runner
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "jobscraper",
		Short: "Scrapes a remote job board into a deduplicated master file and daily snapshots.",
		Long: `jobscraper fetches the job listing API once, keeps postings whose position
matches a keyword, appends unseen postings to a master CSV and writes a dated
snapshot of today's matches as CSV, Parquet or JSON lines.`,
		SilenceUsage: true,

		// Builds the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the JOBSCRAPER_ prefix")
	cmd.AddCommand(newScrapeCmd())
	return cmd
}

// loadDotEnv exports variables from path when it exists. Variables already
// set in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger, lerr := logging.New(logging.Options{})
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Error("Command execution failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
