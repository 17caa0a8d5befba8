package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vodarr/internal/models"
)

// ReviewServiceInterface applies moderation transitions.
type ReviewServiceInterface interface {
	Publish(ctx context.Context, id models.ULID) (*models.Video, error)
	Reject(ctx context.Context, id models.ULID, reason string) (*models.Video, error)
	Unreview(ctx context.Context, id models.ULID) (*models.Video, error)
}

// AdminHandler handles the moderation endpoints.
type AdminHandler struct {
	review ReviewServiceInterface
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(review ReviewServiceInterface) *AdminHandler {
	return &AdminHandler{
		review: review,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *AdminHandler) WithLogger(logger *slog.Logger) *AdminHandler {
	h.logger = logger
	return h
}

// Register registers the admin routes with the API.
func (h *AdminHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "publishVideo",
		Method:      "POST",
		Path:        "/api/v1/admin/videos/{id}/publish",
		Summary:     "Publish video",
		Description: "Accepts a video awaiting review",
		Tags:        []string{"Admin"},
	}, h.Publish)

	huma.Register(api, huma.Operation{
		OperationID: "rejectVideo",
		Method:      "POST",
		Path:        "/api/v1/admin/videos/{id}/reject",
		Summary:     "Reject video",
		Description: "Rejects a video awaiting review with an optional reason",
		Tags:        []string{"Admin"},
	}, h.Reject)

	huma.Register(api, huma.Operation{
		OperationID: "unreviewVideo",
		Method:      "POST",
		Path:        "/api/v1/admin/videos/{id}/unreview",
		Summary:     "Unreview video",
		Description: "Returns a reviewed video to the review queue",
		Tags:        []string{"Admin"},
	}, h.Unreview)
}

// Publish accepts a PendingReview video.
func (h *AdminHandler) Publish(ctx context.Context, input *VideoIDInput) (*VideoOutput, error) {
	return h.apply(ctx, "publishing video", input.ID, h.review.Publish)
}

// RejectInput is the input for rejecting a video.
type RejectInput struct {
	ID   string `path:"id" doc:"Video ID (ULID)"`
	Body *struct {
		Reason string `json:"reason,omitempty" maxLength:"2000" doc:"Shown to the owner"`
	} `required:"false"`
}

// Reject rejects a PendingReview video.
func (h *AdminHandler) Reject(ctx context.Context, input *RejectInput) (*VideoOutput, error) {
	reason := ""
	if input.Body != nil {
		reason = input.Body.Reason
	}
	return h.apply(ctx, "rejecting video", input.ID, func(ctx context.Context, id models.ULID) (*models.Video, error) {
		return h.review.Reject(ctx, id, reason)
	})
}

// Unreview returns a reviewed video to PendingReview.
func (h *AdminHandler) Unreview(ctx context.Context, input *VideoIDInput) (*VideoOutput, error) {
	return h.apply(ctx, "unreviewing video", input.ID, h.review.Unreview)
}

func (h *AdminHandler) apply(ctx context.Context, op, rawID string, fn func(context.Context, models.ULID) (*models.Video, error)) (*VideoOutput, error) {
	caller, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseVideoID(rawID)
	if err != nil {
		return nil, err
	}

	video, err := fn(ctx, id)
	if err != nil {
		return nil, toHTTPError(ctx, h.logger, op, err)
	}

	h.logger.InfoContext(ctx, "review transition applied",
		slog.String("operation", op),
		slog.String("video_id", video.ID.String()),
		slog.String("admin_id", caller.UserID.String()),
		slog.String("status", string(video.Status())))
	return &VideoOutput{Body: VideoFromModel(video)}, nil
}
