// Package cmd defines the follower-snapshot CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/app"
	"github.com/JakeFAU/follower-snapshot/internal/config"
	"github.com/JakeFAU/follower-snapshot/internal/logging"
	"github.com/JakeFAU/follower-snapshot/internal/pipeline"
)

// App is what the subcommands need from the service container.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Pipeline() *pipeline.Pipeline
}

type appKeyType string

const appKey appKeyType = "app"

// newApp is replaced in tests.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// loadDotEnv applies path to the environment when it exists. Variables already set win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "follower-snapshot",
		Short: "Append a dated row of follower counts to a Drive spreadsheet.",
		Long: `follower-snapshot reads an account list from Google Drive, looks up each
account's follower count on the Twitter/X API and appends the results as a dated
row to a history workbook stored next to it.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newRunCmd(), newScheduleCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	a, ok := ctx.Value(appKey).(App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
