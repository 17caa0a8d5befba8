package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/observability"
)

// setupMetrics installs the global meter provider selected by cfg and
// returns the instruments plus a shutdown function that flushes them.
func setupMetrics(cfg config.MetricsConfig, logger *slog.Logger) (*observability.Metrics, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Exporter {
	case "stdout":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, noop, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		opts := []sdkmetric.PeriodicReaderOption{}
		if cfg.Interval > 0 {
			opts = append(opts, sdkmetric.WithInterval(cfg.Interval))
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, opts...)),
		)
		otel.SetMeterProvider(provider)
		logger.Info("metrics exporting to stdout", slog.Duration("interval", cfg.Interval))
		return observability.NewMetrics(logger), provider.Shutdown, nil
	default:
		// The global provider is a no-op until one is installed.
		return observability.NewMetrics(logger), noop, nil
	}
}
