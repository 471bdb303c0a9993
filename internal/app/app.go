// Package app initializes and holds the long-lived services behind a scrape
// run, acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/clock"
	"github.com/JakeFAU/jobscraper/internal/config"
	collyfetcher "github.com/JakeFAU/jobscraper/internal/fetcher/colly"
	uuidgen "github.com/JakeFAU/jobscraper/internal/id/uuid"
	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/metrics"
	"github.com/JakeFAU/jobscraper/internal/output"
	"github.com/JakeFAU/jobscraper/internal/pipeline"
	"github.com/JakeFAU/jobscraper/internal/policy/retry"
	pubsubpub "github.com/JakeFAU/jobscraper/internal/publisher/pubsub"
	"github.com/JakeFAU/jobscraper/internal/storage"
	"github.com/JakeFAU/jobscraper/internal/storage/gcs"
	"github.com/JakeFAU/jobscraper/internal/storage/local"
	"github.com/JakeFAU/jobscraper/internal/storage/postgres"
)

// App holds the services shared by a run: the configured runner plus every
// client that needs closing on shutdown.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
	runner   *pipeline.Runner
	closers  []func() error
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Recorder exposes the run metrics registry.
func (a *App) Recorder() *metrics.Recorder {
	return a.recorder
}

// Runner returns the configured pipeline.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// New builds every service cfg asks for. It fails fast if an optional sink is
// configured but cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, recorder: metrics.New()}
	logger.Info("Initializing application services...")

	policy := retry.New(retry.Config{
		MaxRetries:    cfg.HTTP.MaxRetries,
		BaseDelay:     cfg.BackoffInitial(),
		MaxDelay:      cfg.BackoffMax(),
		RetryStatuses: cfg.HTTP.RetryStatuses,
		Jitter:        cfg.HTTP.Jitter,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		URL:          cfg.Source.URL,
		Headers:      cfg.Source.Headers,
		UserAgent:    cfg.Source.UserAgent,
		Timeout:      cfg.Timeout(),
		MaxBodyBytes: cfg.Source.MaxBodyBytes,
	}, policy, logger, collyfetcher.WithAttemptHook(func(int, int) {
		a.recorder.ObserveFetchAttempt()
	}))

	deps := pipeline.Deps{
		Fetcher:     fetcher,
		Writer:      output.NewWriter(clock.System{}, logger),
		Recorder:    a.recorder,
		MetricsPath: cfg.Metrics.TextfilePath,
		ChartOut:    os.Stdout,
		ChartWidth:  cfg.Report.Width,
		LockMaster:  cfg.Master.Lock,
		Clock:       clock.System{},
		IDs:         uuidgen.New(),
		Logger:      logger,
	}

	// 1. Mirror for finished output files.
	blobs, err := a.blobStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if blobs != nil {
		deps.Mirror = storage.NewMirror(blobs, cfg.Storage.Prefix, logger)
	}

	// 2. Postings table.
	if cfg.DB.DSN != "" {
		logger.Info("Connecting to PostgreSQL...", zap.String("table", cfg.DB.Table))
		store, err := postgres.NewPostingStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MaxConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		deps.Postings = store
	}

	// 3. Run notifications.
	if cfg.PubSub.TopicName != "" {
		logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		pub, err := pubsubpub.New(ctx, pubsubpub.Config{ProjectID: cfg.PubSub.ProjectID, TopicName: cfg.PubSub.TopicName}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		deps.Publisher = pub
		deps.Topic = cfg.PubSub.TopicName
	}

	a.runner, err = pipeline.New(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Application services initialized successfully.")
	return a, nil
}

func (a *App) blobStore(ctx context.Context) (jobs.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageLocal:
		a.logger.Info("Mirroring outputs to local directory", zap.String("dir", a.cfg.Storage.BaseDir))
		return local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
	case config.StorageGCS:
		a.logger.Info("Mirroring outputs to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "", config.StorageNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

// Close shuts down every client the app opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}
