package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
	"gorm.io/gorm"
)

// SQL fragments mirroring models.DeriveStatus. Each status condition includes
// the negation of every rule ahead of it.
const (
	condNotFailed = "encoding_error IS NULL"
	condStreaming = "(hls_url IS NOT NULL OR dash_url IS NOT NULL OR smooth_streaming_url IS NOT NULL)"
	condNoURLs    = "hls_url IS NULL AND dash_url IS NULL AND smooth_streaming_url IS NULL"
	condEncoding  = condNotFailed + " AND " + condNoURLs
	condEncoded   = condNotFailed + " AND " + condStreaming
	condPending   = condEncoded + " AND reviewed_date IS NULL"
	condReviewed  = condEncoded + " AND reviewed_date IS NOT NULL"
	condRejected  = condReviewed + " AND reject_reason IS NOT NULL"
	condAccepted  = condReviewed + " AND reject_reason IS NULL"
	condPrivate   = condAccepted + " AND is_private = ?"
	condPublished = condAccepted + " AND is_private = ?"
)

// videoRepo implements VideoRepository using GORM.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *videoRepo {
	return &videoRepo{db: db}
}

// Create creates a new video.
func (r *videoRepo) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetByID retrieves a video by ID.
func (r *videoRepo) GetByID(ctx context.Context, id models.ULID) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video by ID: %w", err)
	}
	return &video, nil
}

// List returns a page of videos matching filter.
func (r *videoRepo) List(ctx context.Context, filter VideoFilter) ([]*models.Video, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Video{})

	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		cond, args, err := statusCondition(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where(cond, args...)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.VisibleTo != nil {
		query = query.Where("(owner_id = ? OR ("+condPublished+"))", *filter.VisibleTo, false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting videos: %w", err)
	}

	var videos []*models.Video
	page := query.Order("created_at DESC, id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if err := page.Find(&videos).Error; err != nil {
		return nil, 0, fmt.Errorf("listing videos: %w", err)
	}
	return videos, total, nil
}

// statusCondition returns the WHERE clause selecting videos whose derived
// status is s.
func statusCondition(s models.VideoStatus) (string, []any, error) {
	switch s {
	case models.VideoStatusFailed:
		return "encoding_error IS NOT NULL", nil, nil
	case models.VideoStatusEncoding:
		return condEncoding, nil, nil
	case models.VideoStatusPendingReview:
		return condPending, nil, nil
	case models.VideoStatusRejected:
		return condRejected, nil, nil
	case models.VideoStatusPrivate:
		return condPrivate, []any{true}, nil
	case models.VideoStatusPublished:
		return condPublished, []any{false}, nil
	default:
		return "", nil, fmt.Errorf("unknown video status %q", s)
	}
}

// Delete permanently removes a video row.
func (r *videoRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Video{}).Error; err != nil {
		return fmt.Errorf("deleting video: %w", err)
	}
	return nil
}

// SetAssetRef records the allocated output asset.
func (r *videoRepo) SetAssetRef(ctx context.Context, id models.ULID, assetRef string) error {
	return r.updateByID(ctx, id, "setting asset ref", map[string]any{"transcode_asset_ref": assetRef})
}

// SetJobRef records the submitted transcode job.
func (r *videoRepo) SetJobRef(ctx context.Context, id models.ULID, jobRef string) error {
	return r.updateByID(ctx, id, "setting job ref", map[string]any{"transcode_job_ref": jobRef})
}

// MarkEncodingError records a terminal failure on a single video.
func (r *videoRepo) MarkEncodingError(ctx context.Context, id models.ULID, message string) error {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND "+condNotFailed, id).
		UpdateColumns(map[string]any{
			"encoding_error": message,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("marking encoding error: %w", result.Error)
	}
	return nil
}

func (r *videoRepo) updateByID(ctx context.Context, id models.ULID, op string, cols map[string]any) error {
	cols["updated_at"] = time.Now()
	// UpdateColumns skips hooks so upload validation does not rerun.
	result := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).UpdateColumns(cols)
	if result.Error != nil {
		return fmt.Errorf("%s: %w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrVideoNotFound)
	}
	return nil
}

// CountEncodingByAsset counts videos still Encoding on assetRef.
func (r *videoRepo) CountEncodingByAsset(ctx context.Context, assetRef string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("transcode_asset_ref = ? AND "+condEncoding, assetRef).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting encoding videos: %w", err)
	}
	return n, nil
}

// ApplyStreamingOutputByAsset writes resolved URLs to matching videos that
// are still Encoding.
func (r *videoRepo) ApplyStreamingOutputByAsset(ctx context.Context, assetRef string, out models.StreamingOutput) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("transcode_asset_ref = ? AND "+condEncoding, assetRef).
		UpdateColumns(map[string]any{
			"hls_url":              out.HLSURL,
			"dash_url":             out.DASHURL,
			"smooth_streaming_url": out.SmoothStreamingURL,
			"thumbnail_url":        out.ThumbnailURL,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("applying streaming output: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// FailByAsset records a terminal failure on matching videos that are still
// Encoding. Videos that already have streaming URLs are left alone.
func (r *videoRepo) FailByAsset(ctx context.Context, assetRef string, message string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("transcode_asset_ref = ? AND "+condEncoding, assetRef).
		UpdateColumns(map[string]any{
			"encoding_error": message,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failing videos by asset: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Publish marks a PendingReview video as accepted.
func (r *videoRepo) Publish(ctx context.Context, id models.ULID, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, id, "publishing video", condPending, map[string]any{
		"reviewed_date": at,
		"reject_reason": nil,
	})
}

// Reject marks a PendingReview video as rejected.
func (r *videoRepo) Reject(ctx context.Context, id models.ULID, reason string, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, id, "rejecting video", condPending, map[string]any{
		"reviewed_date": at,
		"reject_reason": reason,
	})
}

// Unreview returns a reviewed video to PendingReview.
func (r *videoRepo) Unreview(ctx context.Context, id models.ULID) (bool, error) {
	return r.conditionalUpdate(ctx, id, "unreviewing video", condReviewed, map[string]any{
		"reviewed_date": nil,
		"reject_reason": nil,
	})
}

// SetPrivacy sets is_private on an encoded video.
func (r *videoRepo) SetPrivacy(ctx context.Context, id models.ULID, private bool) (bool, error) {
	return r.conditionalUpdate(ctx, id, "setting privacy", condEncoded, map[string]any{
		"is_private": private,
	})
}

// conditionalUpdate applies cols only when the row still satisfies cond.
func (r *videoRepo) conditionalUpdate(ctx context.Context, id models.ULID, op, cond string, cols map[string]any) (bool, error) {
	cols["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", id).
		Where(cond).
		UpdateColumns(cols)
	if result.Error != nil {
		return false, fmt.Errorf("%s: %w", op, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FindStuckEncoding returns videos that look abandoned mid-encode.
func (r *videoRepo) FindStuckEncoding(ctx context.Context, olderThan time.Time, limit int) ([]*models.Video, error) {
	var videos []*models.Video
	query := r.db.WithContext(ctx).
		Where("transcode_asset_ref IS NOT NULL").
		Where(condEncoding).
		Where("created_at < ?", olderThan).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("finding stuck encodings: %w", err)
	}
	return videos, nil
}
