package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vodarr/internal/models"
)

// TransformHandle names an encoding transform known to exist remotely.
type TransformHandle struct {
	Name   string
	Preset string
}

// TransformRegistry makes sure the encoding transform exists before jobs are
// submitted against it.
type TransformRegistry struct {
	client Transcoder
	logger *slog.Logger
}

// NewTransformRegistry creates a new TransformRegistry.
func NewTransformRegistry(client Transcoder) *TransformRegistry {
	return &TransformRegistry{client: client, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (r *TransformRegistry) WithLogger(logger *slog.Logger) *TransformRegistry {
	r.logger = logger
	return r
}

// EnsureTransform creates or updates the named transform with a built-in
// preset. Calling it repeatedly is harmless. Any failure wraps
// models.ErrTranscoderUnavailable.
func (r *TransformRegistry) EnsureTransform(ctx context.Context, name, preset string) (TransformHandle, error) {
	t, err := r.client.CreateOrUpdateTransform(ctx, name, preset)
	if err != nil {
		if errors.Is(err, models.ErrTranscoderUnavailable) {
			return TransformHandle{}, fmt.Errorf("ensuring transform %s: %w", name, err)
		}
		return TransformHandle{}, fmt.Errorf("ensuring transform %s: %w: %w", name, models.ErrTranscoderUnavailable, err)
	}

	handle := TransformHandle{Name: name, Preset: preset}
	if t != nil && t.Name != "" {
		handle.Name = t.Name
	}
	r.logger.DebugContext(ctx, "transform ensured",
		slog.String("transform", handle.Name),
		slog.String("preset", preset))
	return handle, nil
}
