package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internalhttp "github.com/jmylchreest/vodarr/internal/http"
	"github.com/jmylchreest/vodarr/internal/http/handlers"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/scheduler"
	"github.com/jmylchreest/vodarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vodarr server",
	Long: `Start the vodarr HTTP server and background workers.

The server provides:
- Upload handoff, status, listing, privacy and deletion under /api/v1/videos
- Admin review transitions under /api/v1/admin/videos
- The transcoder webhook at /api/v1/webhooks/transcoder
- Health check at /health and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, shutdownMetrics, err := setupMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("flushing metrics failed", slog.String("error", err.Error()))
		}
	}()

	a, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing resources failed", slog.String("error", err.Error()))
		}
	}()

	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	defer a.dispatcher.Stop()

	if cfg.Scheduler.ReconcileEnabled {
		reconciler := scheduler.NewReconciler(a.reconcile, cfg.Scheduler.ReconcileCron).
			WithLogger(observability.WithComponent(logger, "reconciler"))
		if err := reconciler.Start(ctx); err != nil {
			return fmt.Errorf("starting reconciler: %w", err)
		}
		defer reconciler.Stop()
	}

	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     internalhttp.DefaultServerConfig().IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	handlers.NewHealthHandler(version.Version).
		WithDB(a.db.DB).
		WithDispatcher(a.dispatcher).
		WithTranscoder(a.transcoder).
		Register(server.API())

	handlers.NewVideoHandler(a.video, a.encoding, a.review).
		WithLogger(logger).
		Register(server.API())

	handlers.NewAdminHandler(a.review).
		WithLogger(logger).
		Register(server.API())

	handlers.NewWebhookHandler(a.webhook).
		WithLogger(logger).
		RegisterChiRoutes(server.Router())

	logger.Info("starting vodarr server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
		slog.String("webhook_mode", cfg.Webhook.Mode),
		slog.String("completion_mode", cfg.Encoding.CompletionMode),
	)

	return server.ListenAndServe(ctx)
}
