package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vodarr/internal/blobstore"
	"github.com/jmylchreest/vodarr/internal/transcoder"
)

// AssetCleanup removes a video's transcoder output: the storage container
// first, then the asset.
type AssetCleanup struct {
	client Transcoder
	store  blobstore.Store
	logger *slog.Logger
}

// NewAssetCleanup creates a new AssetCleanup.
func NewAssetCleanup(client Transcoder, store blobstore.Store) *AssetCleanup {
	if store == nil {
		store = blobstore.Noop{}
	}
	return &AssetCleanup{client: client, store: store, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (c *AssetCleanup) WithLogger(logger *slog.Logger) *AssetCleanup {
	c.logger = logger
	return c
}

// DeleteVideoAssets deletes the asset and its container. An asset that no
// longer exists counts as deleted.
func (c *AssetCleanup) DeleteVideoAssets(ctx context.Context, assetRef string) error {
	asset, err := c.client.GetAsset(ctx, assetRef)
	if err != nil {
		if transcoder.IsNotFound(err) {
			c.logger.InfoContext(ctx, "asset already gone", slog.String("asset", assetRef))
			return nil
		}
		return fmt.Errorf("getting asset: %w", err)
	}

	if container := asset.Properties.Container; container != "" {
		if err := c.store.DeleteContainer(ctx, container); err != nil {
			return fmt.Errorf("deleting container %s: %w", container, err)
		}
	}

	if err := c.client.DeleteAsset(ctx, assetRef); err != nil && !transcoder.IsNotFound(err) {
		return fmt.Errorf("deleting asset: %w", err)
	}

	c.logger.InfoContext(ctx, "asset deleted",
		slog.String("asset", assetRef),
		slog.String("container", asset.Properties.Container),
		slog.String("store", c.store.Name()))
	return nil
}
