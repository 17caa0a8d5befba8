// Package repository defines data access interfaces for vodarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
)

// VideoFilter narrows a video listing. Zero values mean no restriction.
type VideoFilter struct {
	// Search matches name or description, case-insensitively.
	Search       string
	Type         models.VideoType
	Status       models.VideoStatus
	OwnerID      *models.ULID
	CreatedAfter *time.Time

	// VisibleTo limits results to the user's own videos plus Published
	// videos of others. Nil means no visibility restriction (admins).
	VisibleTo *models.ULID

	Offset int
	Limit  int
}

// VideoRepository defines operations for video persistence.
//
// Lifecycle writes are targeted column updates, so concurrent writers touching
// different fields never overwrite each other. Review writes are conditional on
// the derived status and report whether a row was changed.
type VideoRepository interface {
	// Create creates a new video.
	Create(ctx context.Context, video *models.Video) error
	// GetByID retrieves a video by ID. Returns nil, nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Video, error)
	// List returns a page of videos matching filter, newest first, and the total match count.
	List(ctx context.Context, filter VideoFilter) ([]*models.Video, int64, error)
	// Delete permanently removes a video row.
	Delete(ctx context.Context, id models.ULID) error

	// SetAssetRef records the allocated output asset.
	SetAssetRef(ctx context.Context, id models.ULID, assetRef string) error
	// SetJobRef records the submitted transcode job.
	SetJobRef(ctx context.Context, id models.ULID, jobRef string) error
	// MarkEncodingError records a terminal failure on a single video. An
	// existing error is kept.
	MarkEncodingError(ctx context.Context, id models.ULID, message string) error

	// CountEncodingByAsset counts videos referencing assetRef that have
	// neither streaming URLs nor an encoding error.
	CountEncodingByAsset(ctx context.Context, assetRef string) (int64, error)
	// ApplyStreamingOutputByAsset writes resolved URLs to every Encoding
	// video referencing assetRef and returns the number of rows updated.
	ApplyStreamingOutputByAsset(ctx context.Context, assetRef string, out models.StreamingOutput) (int64, error)
	// FailByAsset records a terminal failure on every Encoding video
	// referencing assetRef and returns the number of rows updated. Videos
	// that already finished are never failed.
	FailByAsset(ctx context.Context, assetRef string, message string) (int64, error)

	// Publish marks a PendingReview video as reviewed and accepted.
	Publish(ctx context.Context, id models.ULID, at time.Time) (bool, error)
	// Reject marks a PendingReview video as reviewed with a reason.
	Reject(ctx context.Context, id models.ULID, reason string, at time.Time) (bool, error)
	// Unreview returns a reviewed video to PendingReview.
	Unreview(ctx context.Context, id models.ULID) (bool, error)
	// SetPrivacy sets is_private on a video that has finished encoding.
	SetPrivacy(ctx context.Context, id models.ULID, private bool) (bool, error)

	// FindStuckEncoding returns videos with an allocated asset but no URLs
	// and no error, created before olderThan, oldest first.
	FindStuckEncoding(ctx context.Context, olderThan time.Time, limit int) ([]*models.Video, error)
}
