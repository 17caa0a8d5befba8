package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/repository"
)

// Listing limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListVideosInput holds listing parameters.
type ListVideosInput struct {
	Page         int
	Limit        int
	Search       string
	Type         models.VideoType
	Status       models.VideoStatus
	OwnerID      *models.ULID
	CreatedAfter *time.Time
}

// ListVideosResult is one page of videos.
type ListVideosResult struct {
	Videos     []*models.Video
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// VideoService serves reads and owner-driven deletion.
type VideoService struct {
	repo    repository.VideoRepository
	cleanup *AssetCleanup
	logger  *slog.Logger
}

// NewVideoService creates a new VideoService.
func NewVideoService(repo repository.VideoRepository, cleanup *AssetCleanup) *VideoService {
	return &VideoService{repo: repo, cleanup: cleanup, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *VideoService) WithLogger(logger *slog.Logger) *VideoService {
	s.logger = logger
	return s
}

// Get returns a video the requester may see. Videos of other users that are
// not Published are reported as not found.
func (s *VideoService) Get(ctx context.Context, id models.ULID, requester models.Principal) (*models.Video, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}
	if v == nil || !canView(v, requester) {
		return nil, models.ErrVideoNotFound
	}
	return v, nil
}

// List returns a page of videos the requester may see.
func (s *VideoService) List(ctx context.Context, in ListVideosInput, requester models.Principal) (*ListVideosResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	if limit < 1 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	filter := repository.VideoFilter{
		Search:       in.Search,
		Type:         in.Type,
		Status:       in.Status,
		OwnerID:      in.OwnerID,
		CreatedAfter: in.CreatedAfter,
		Offset:       (page - 1) * limit,
		Limit:        limit,
	}
	if !requester.Role.AtLeastAdmin() {
		uid := requester.UserID
		filter.VisibleTo = &uid
	}

	videos, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}

	return &ListVideosResult{
		Videos:     videos,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// Delete removes a video's remote assets and then its record. A video whose
// encoding has neither produced an asset nor failed cannot be deleted yet.
// If cleanup fails the record is kept so the delete can be retried.
func (s *VideoService) Delete(ctx context.Context, id models.ULID, requester models.Principal) error {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting video: %w", err)
	}
	if v == nil {
		return models.ErrVideoNotFound
	}
	if !requester.CanManage(v.OwnerID) {
		return models.ErrForbidden
	}

	assetRef := models.StringVal(v.TranscodeAssetRef)
	if assetRef == "" && v.EncodingError == nil {
		return models.ErrAssetNotReady
	}

	if assetRef != "" {
		if err := s.cleanup.DeleteVideoAssets(ctx, assetRef); err != nil {
			return fmt.Errorf("cleaning up assets: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting video: %w", err)
	}
	s.logger.InfoContext(ctx, "video deleted",
		slog.String("video_id", id.String()),
		slog.String("asset", assetRef))
	return nil
}

func canView(v *models.Video, p models.Principal) bool {
	return p.CanManage(v.OwnerID) || v.Status() == models.VideoStatusPublished
}
