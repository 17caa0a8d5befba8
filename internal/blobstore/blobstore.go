// Package blobstore deletes the storage containers that hold transcoder
// output once their asset is removed.
package blobstore

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/jmylchreest/vodarr/internal/config"
)

// Store removes asset containers. Deleting a container that does not exist
// is not an error.
type Store interface {
	DeleteContainer(ctx context.Context, container string) error
	Name() string
}

// Open builds the Store selected by cfg.Driver. ts authenticates the azure
// driver and may be nil for anonymous or emulator endpoints.
func Open(ctx context.Context, cfg config.StorageConfig, ts oauth2.TokenSource, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "azure":
		return NewAzure(cfg.Azure, ts, logger), nil
	case "gcs":
		return NewGCS(ctx, cfg.GCS, logger)
	case "none", "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Noop is a Store that keeps containers in place.
type Noop struct{}

// DeleteContainer does nothing.
func (Noop) DeleteContainer(context.Context, string) error { return nil }

// Name returns the driver name.
func (Noop) Name() string { return "none" }
