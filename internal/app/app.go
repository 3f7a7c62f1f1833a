// Package app builds the long-lived services behind the CLI commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/follower-snapshot/internal/accounts"
	"github.com/JakeFAU/follower-snapshot/internal/clock/system"
	"github.com/JakeFAU/follower-snapshot/internal/config"
	"github.com/JakeFAU/follower-snapshot/internal/drive"
	"github.com/JakeFAU/follower-snapshot/internal/followers"
	"github.com/JakeFAU/follower-snapshot/internal/history"
	"github.com/JakeFAU/follower-snapshot/internal/id/uuid"
	"github.com/JakeFAU/follower-snapshot/internal/metrics"
	"github.com/JakeFAU/follower-snapshot/internal/pipeline"
	"github.com/JakeFAU/follower-snapshot/internal/retry"
	"github.com/JakeFAU/follower-snapshot/internal/storage/gcs"
	"github.com/JakeFAU/follower-snapshot/internal/storage/local"
)

// Options override how cloud clients are dialed. Nil slices mean "use the config".
type Options struct {
	DriveOptions   []option.ClientOption
	StorageOptions []option.ClientOption
}

// App holds the services shared by the run and schedule commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	archive  *gcs.BlobStore
}

// New wires every dependency of a pipeline run from cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	clk, err := system.Load(cfg.Run.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load run timezone: %w", err)
	}

	files, err := newDriveStore(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	caller := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.Delay, logger.Named("retry"))
	resolver := accounts.NewResolver(files, caller, logger.Named("accounts"))
	client := followers.New(followers.Config{
		BaseURL:     cfg.MetricsAPI.BaseURL,
		BearerToken: cfg.MetricsAPI.BearerToken,
		Timeout:     cfg.MetricsTimeout(),
		UserAgent:   cfg.MetricsAPI.UserAgent,
	}, caller, logger.Named("followers"))

	a := &App{cfg: cfg, logger: logger}

	var mirror history.BlobStore
	switch {
	case cfg.Archive.GCSBucket != "":
		archive, err := newArchive(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		a.archive = archive
		mirror = archive
		logger.Info("archive mirror enabled", zap.String("bucket", cfg.Archive.GCSBucket))
	case cfg.Archive.LocalDir != "":
		dir, err := local.New(local.Config{BaseDir: cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		mirror = dir
		logger.Info("archive mirror enabled", zap.String("dir", cfg.Archive.LocalDir))
	}

	store := history.NewStore(files, caller, mirror, history.Config{
		MirrorPrefix: cfg.Archive.Prefix,
	}, logger.Named("history"))

	p, err := pipeline.New(
		pipeline.Config{AccountsFile: cfg.Drive.AccountsFile, HistoryFile: cfg.Drive.HistoryFile},
		pipeline.Deps{
			Finder:   resolver,
			Accounts: resolver,
			Fetcher:  client,
			History:  store,
			Clock:    clk,
			IDs:      uuid.New(),
			Logger:   logger.Named("pipeline"),
		},
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.pipeline = p
	return a, nil
}

func newDriveStore(ctx context.Context, cfg config.Config, opts Options) (*drive.Store, error) {
	if opts.DriveOptions != nil {
		store, err := drive.NewWithOptions(ctx, opts.DriveOptions...)
		if err != nil {
			return nil, fmt.Errorf("connect drive: %w", err)
		}
		return store, nil
	}
	store, err := drive.New(ctx, drive.Config{
		CredentialsJSON: cfg.Drive.CredentialsJSON,
		CredentialsFile: cfg.Drive.CredentialsFile,
		Endpoint:        cfg.Drive.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("connect drive: %w", err)
	}
	return store, nil
}

func newArchive(ctx context.Context, cfg config.Config, opts Options) (*gcs.BlobStore, error) {
	clientOpts := opts.StorageOptions
	if clientOpts == nil {
		switch {
		case cfg.Drive.CredentialsJSON != "":
			clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.Drive.CredentialsJSON)))
		case cfg.Drive.CredentialsFile != "":
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Drive.CredentialsFile))
		}
	}
	archive, err := gcs.Open(ctx, gcs.Config{
		Bucket:   cfg.Archive.GCSBucket,
		Metadata: map[string]string{"source": "follower-snapshot"},
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	return archive, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Pipeline returns the wired pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Close releases cloud clients and flushes the logger.
func (a *App) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("close archive client", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
