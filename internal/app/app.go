// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for the CLI entrypoints.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/api"
	"github.com/ending-signal/crawler/internal/archive"
	"github.com/ending-signal/crawler/internal/config"
	"github.com/ending-signal/crawler/internal/diffsync"
	"github.com/ending-signal/crawler/internal/fetcher"
	"github.com/ending-signal/crawler/internal/logging"
	"github.com/ending-signal/crawler/internal/metrics"
	"github.com/ending-signal/crawler/internal/notify"
	"github.com/ending-signal/crawler/internal/pipeline"
	"github.com/ending-signal/crawler/internal/storage/postgres"
)

// App holds the shared services built from configuration. It is initialized
// once at startup and handed to the commands that need it.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Pipeline *pipeline.Pipeline
	Server   *api.Server

	gcs *archive.GCS
}

// New builds every service the commands need, failing fast on bad
// configuration or unreachable dependencies.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	contents := postgres.NewContentStore(pool, logger)
	subscriptions := postgres.NewSubscriptionStore(pool)

	var mailer notify.Mailer
	smtp, err := notify.NewSMTPMailer(cfg.MailConfig())
	switch {
	case errors.Is(err, notify.ErrUnconfigured):
		logger.Warn("smtp credentials missing, completion emails disabled")
	case err != nil:
		pool.Close()
		return nil, fmt.Errorf("build mailer: %w", err)
	default:
		mailer = smtp
	}

	app := &App{Config: cfg, Logger: logger, Pool: pool}

	var snapshots archive.Provider = archive.NoOp{}
	if cfg.Archive.Provider == "gcs" {
		gcs, err := archive.NewGCS(ctx, cfg.Archive.Bucket, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build archive: %w", err)
		}
		app.gcs = gcs
		snapshots = gcs
	}

	app.Pipeline = pipeline.New(pipeline.Params{
		Fetcher:       fetcher.New(cfg.FetcherConfig(), cfg.RetryPolicy(), logger),
		Contents:      contents,
		Notifier:      notify.New(subscriptions, mailer, cfg.Source.Name, logger),
		Syncer:        diffsync.New(contents, cfg.Source.Name, logger),
		Archive:       snapshots,
		ArchivePrefix: cfg.Archive.Prefix,
		Source:        cfg.Source.Name,
		Crawl:         cfg.CrawlConfig(),
		Logger:        logger,
	})
	app.Server = api.NewServer(app.Pipeline, pool, logger)

	logger.Info("application services initialized",
		zap.String("source", cfg.Source.Name),
		zap.String("archive", cfg.Archive.Provider),
		zap.Bool("mail_enabled", mailer != nil),
	)
	return app, nil
}

// Close releases held resources in reverse initialization order.
func (a *App) Close() {
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.Logger.Warn("close archive client", zap.Error(err))
		}
	}
	a.Pool.Close()
	_ = a.Logger.Sync()
}
