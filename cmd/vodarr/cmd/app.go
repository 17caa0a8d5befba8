package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vodarr/internal/blobstore"
	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/database"
	"github.com/jmylchreest/vodarr/internal/database/migrations"
	"github.com/jmylchreest/vodarr/internal/dedupe"
	"github.com/jmylchreest/vodarr/internal/httpclient"
	"github.com/jmylchreest/vodarr/internal/notify"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/repository"
	"github.com/jmylchreest/vodarr/internal/scheduler"
	"github.com/jmylchreest/vodarr/internal/service"
	"github.com/jmylchreest/vodarr/internal/transcoder"
)

// app holds the wired services shared by the serve, await and reconcile
// commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *database.DB
	videos     repository.VideoRepository
	transcoder *transcoder.Client
	dispatcher *scheduler.Dispatcher
	metrics    *observability.Metrics

	encoding   *service.EncodingService
	completion *service.CompletionService
	poller     *service.JobPoller
	webhook    *service.WebhookService
	review     *service.ReviewService
	video      *service.VideoService
	reconcile  *service.ReconcileService

	closers []func() error
}

// newApp opens the database, runs migrations and wires every service.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.db, err = database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	migrator := migrations.NewMigrator(a.db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	a.videos = repository.NewVideoRepository(a.db.DB)
	a.transcoder = transcoder.New(cfg.Transcoder, logger)

	store, err := blobstore.Open(ctx, cfg.Storage,
		transcoder.NewTokenSource(cfg.Transcoder, cfg.Storage.Azure.Scope), logger)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	notifier, closeNotifier, err := notify.Open(ctx, cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("opening notifier: %w", err)
	}
	a.closers = append(a.closers, closeNotifier)

	ledger, closeLedger, err := dedupe.Open(cfg.Dedupe, logger)
	if err != nil {
		return nil, fmt.Errorf("opening dedupe ledger: %w", err)
	}
	a.closers = append(a.closers, closeLedger)

	a.dispatcher = scheduler.NewDispatcher().
		WithLogger(observability.WithComponent(logger, "dispatcher")).
		WithConfig(scheduler.DispatcherConfig{
			WorkerCount: cfg.Scheduler.Workers,
			QueueSize:   cfg.Scheduler.QueueSize,
			TaskTimeout: cfg.Encoding.PollTimeout + cfg.Encoding.PollInterval,
		})

	tr := cfg.Transcoder
	resolver := service.NewCompletionResolver(a.transcoder, tr.StreamingEndpoint, tr.LocatorPolicy).
		WithLogger(logger)
	a.completion = service.NewCompletionService(a.videos, resolver).WithLogger(logger)
	a.poller = service.NewJobPoller(a.transcoder, tr.TransformName).
		WithLogger(logger).
		WithMetrics(metrics)

	a.encoding = service.NewEncodingService(a.videos,
		service.NewTransformRegistry(a.transcoder).WithLogger(logger),
		service.NewJobSubmitter(a.transcoder).WithLogger(logger),
		service.EncodingConfig{
			TransformName:  tr.TransformName,
			PresetName:     tr.PresetName,
			CompletionMode: cfg.Encoding.CompletionMode,
			PollInterval:   cfg.Encoding.PollInterval,
			PollTimeout:    cfg.Encoding.PollTimeout,
		}).
		WithLogger(logger).
		WithMetrics(metrics).
		WithPolling(a.poller, a.completion, a.dispatcher)

	validationCfg := httpclient.DefaultConfig()
	validationCfg.RetryAttempts = 0
	validationCfg.Logger = logger
	a.webhook = service.NewWebhookService(a.completion).
		WithLogger(observability.WithComponent(logger, "webhook")).
		WithMetrics(metrics).
		WithLedger(ledger).
		WithDispatcher(a.dispatcher).
		WithMode(cfg.Webhook.Mode).
		WithValidationClient(httpclient.New(validationCfg), cfg.Webhook.ValidationTimeout)

	a.review = service.NewReviewService(a.videos, notifier).
		WithLogger(logger).
		WithMetrics(metrics)

	cleanup := service.NewAssetCleanup(a.transcoder, store).WithLogger(logger)
	a.video = service.NewVideoService(a.videos, cleanup).WithLogger(logger)

	a.reconcile = service.NewReconcileService(a.videos, a.poller, a.completion,
		cfg.Scheduler.ReconcileGrace, cfg.Scheduler.ReconcileBatch).
		WithLogger(observability.WithComponent(logger, "reconciler")).
		WithMetrics(metrics)

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
