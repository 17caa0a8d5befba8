package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jmylchreest/vodarr/internal/config"
)

// GCS stores each container as an object prefix "<container>/" in one bucket.
type GCS struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCS creates a GCS store.
func NewGCS(ctx context.Context, cfg config.GCSStorageConfig, logger *slog.Logger) (*GCS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCS{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Name returns the driver name.
func (g *GCS) Name() string { return "gcs" }

// DeleteContainer deletes every object under the container prefix.
func (g *GCS) DeleteContainer(ctx context.Context, container string) error {
	bucket := g.client.Bucket(g.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: container + "/"})

	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("listing objects in %s: %w", container, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("deleting object %s: %w", attrs.Name, err)
		}
		deleted++
	}

	g.logger.InfoContext(ctx, "container prefix deleted",
		slog.String("bucket", g.bucket),
		slog.String("container", container),
		slog.Int("objects", deleted),
	)
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
