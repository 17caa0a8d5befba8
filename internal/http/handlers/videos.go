package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/service"
)

// VideoServiceInterface serves video reads and deletion.
type VideoServiceInterface interface {
	Get(ctx context.Context, id models.ULID, requester models.Principal) (*models.Video, error)
	List(ctx context.Context, in service.ListVideosInput, requester models.Principal) (*service.ListVideosResult, error)
	Delete(ctx context.Context, id models.ULID, requester models.Principal) error
}

// EncodingServiceInterface starts transcoding for an uploaded video.
type EncodingServiceInterface interface {
	StartEncoding(ctx context.Context, in service.CreateVideoInput, owner models.Principal) (*models.Video, error)
}

// PrivacyServiceInterface changes video visibility.
type PrivacyServiceInterface interface {
	SetPrivacy(ctx context.Context, id models.ULID, private bool, requester models.Principal) (*models.Video, error)
}

// VideoHandler handles user-facing video endpoints.
type VideoHandler struct {
	videos   VideoServiceInterface
	encoding EncodingServiceInterface
	privacy  PrivacyServiceInterface
	logger   *slog.Logger
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(videos VideoServiceInterface, encoding EncodingServiceInterface, privacy PrivacyServiceInterface) *VideoHandler {
	return &VideoHandler{
		videos:   videos,
		encoding: encoding,
		privacy:  privacy,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *VideoHandler) WithLogger(logger *slog.Logger) *VideoHandler {
	h.logger = logger
	return h
}

// VideoResponse is the API view of a video, including its derived status.
type VideoResponse struct {
	ID                 string             `json:"id"`
	OwnerID            string             `json:"owner_id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Type               models.VideoType   `json:"type"`
	Status             models.VideoStatus `json:"status"`
	HLSURL             *string            `json:"hls_url,omitempty"`
	DASHURL            *string            `json:"dash_url,omitempty"`
	SmoothStreamingURL *string            `json:"smooth_streaming_url,omitempty"`
	ThumbnailURL       *string            `json:"thumbnail_url,omitempty"`
	EncodingError      *string            `json:"encoding_error,omitempty"`
	RejectReason       *string            `json:"reject_reason,omitempty"`
	ReviewedDate       *time.Time         `json:"reviewed_date,omitempty"`
	IsPrivate          bool               `json:"is_private"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// VideoFromModel converts a model to its API view.
func VideoFromModel(v *models.Video) VideoResponse {
	return VideoResponse{
		ID:                 v.ID.String(),
		OwnerID:            v.OwnerID.String(),
		Name:               v.Name,
		Description:        v.Description,
		Type:               v.Type,
		Status:             v.Status(),
		HLSURL:             v.HLSURL,
		DASHURL:            v.DASHURL,
		SmoothStreamingURL: v.SmoothStreamingURL,
		ThumbnailURL:       v.ThumbnailURL,
		EncodingError:      v.EncodingError,
		RejectReason:       v.RejectReason,
		ReviewedDate:       v.ReviewedDate,
		IsPrivate:          v.IsPrivate,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createVideo",
		Method:        "POST",
		Path:          "/api/v1/videos",
		Summary:       "Create video",
		Description:   "Registers an uploaded blob and starts transcoding it",
		Tags:          []string{"Videos"},
		DefaultStatus: 201,
	}, h.CreateVideo)

	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/v1/videos",
		Summary:     "List videos",
		Description: "Returns a paginated list of videos visible to the caller",
		Tags:        []string{"Videos"},
	}, h.ListVideos)

	huma.Register(api, huma.Operation{
		OperationID: "getVideo",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}",
		Summary:     "Get video",
		Description: "Returns a video with its status and streaming URLs",
		Tags:        []string{"Videos"},
	}, h.GetVideo)

	huma.Register(api, huma.Operation{
		OperationID: "setVideoPrivacy",
		Method:      "PUT",
		Path:        "/api/v1/videos/{id}/privacy",
		Summary:     "Set video privacy",
		Description: "Marks a finished video private or public. Owner only",
		Tags:        []string{"Videos"},
	}, h.SetPrivacy)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteVideo",
		Method:        "DELETE",
		Path:          "/api/v1/videos/{id}",
		Summary:       "Delete video",
		Description:   "Deletes a video and its transcoded assets",
		Tags:          []string{"Videos"},
		DefaultStatus: 204,
	}, h.DeleteVideo)
}

// CreateVideoInput is the input for creating a video.
type CreateVideoInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Description string `json:"description,omitempty" doc:"Free text description"`
		Type        string `json:"type,omitempty" enum:"Regular,VR" doc:"Regular or VR"`
		BlobURL     string `json:"blobUrl" minLength:"1" doc:"URL of the uploaded source blob"`
	}
}

// VideoOutput wraps a single video.
type VideoOutput struct {
	Body VideoResponse
}

// CreateVideo registers the upload and submits the transcode job.
func (h *VideoHandler) CreateVideo(ctx context.Context, input *CreateVideoInput) (*VideoOutput, error) {
	caller, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	video, err := h.encoding.StartEncoding(ctx, service.CreateVideoInput{
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Type:        models.VideoType(input.Body.Type),
		BlobURL:     input.Body.BlobURL,
	}, caller)
	if err != nil {
		if video != nil && errors.Is(err, models.ErrTranscoderUnavailable) {
			return nil, huma.Error503ServiceUnavailable("transcoder unavailable; video " + video.ID.String() + " marked failed")
		}
		return nil, toHTTPError(ctx, h.logger, "creating video", err)
	}

	return &VideoOutput{Body: VideoFromModel(video)}, nil
}

// ListVideosInput is the input for listing videos.
type ListVideosInput struct {
	Page         int    `query:"page" default:"1" minimum:"1"`
	Limit        int    `query:"limit" default:"20" minimum:"1" maximum:"100"`
	Search       string `query:"search"`
	Type         string `query:"type" enum:"Regular,VR"`
	Status       string `query:"status" enum:"Encoding,Failed,PendingReview,Rejected,Published,Private"`
	OwnerID      string `query:"ownerId"`
	CreatedAfter string `query:"createdAfter" doc:"RFC3339 timestamp"`
}

// ListVideosOutput is the output for listing videos.
type ListVideosOutput struct {
	Body struct {
		Items      []VideoResponse `json:"items"`
		Total      int64           `json:"total"`
		Page       int             `json:"page"`
		PerPage    int             `json:"per_page"`
		TotalPages int             `json:"total_pages"`
		HasNext    bool            `json:"has_next"`
		HasPrev    bool            `json:"has_previous"`
	}
}

// ListVideos returns a page of videos.
func (h *VideoHandler) ListVideos(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	caller, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	in := service.ListVideosInput{
		Page:   input.Page,
		Limit:  input.Limit,
		Search: input.Search,
		Type:   models.VideoType(input.Type),
	}
	if input.Status != "" {
		status, err := models.ParseVideoStatus(input.Status)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		in.Status = status
	}
	if input.OwnerID != "" {
		owner, err := models.ParseULID(input.OwnerID)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid ownerId")
		}
		in.OwnerID = &owner
	}
	if input.CreatedAfter != "" {
		after, err := time.Parse(time.RFC3339, input.CreatedAfter)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("createdAfter must be RFC3339")
		}
		in.CreatedAfter = &after
	}

	result, err := h.videos.List(ctx, in, caller)
	if err != nil {
		return nil, toHTTPError(ctx, h.logger, "listing videos", err)
	}

	resp := &ListVideosOutput{}
	resp.Body.Items = make([]VideoResponse, len(result.Videos))
	for i, v := range result.Videos {
		resp.Body.Items[i] = VideoFromModel(v)
	}
	resp.Body.Total = result.Total
	resp.Body.Page = result.Page
	resp.Body.PerPage = result.Limit
	resp.Body.TotalPages = result.TotalPages
	resp.Body.HasNext = result.Page < result.TotalPages
	resp.Body.HasPrev = result.Page > 1
	return resp, nil
}

// VideoIDInput identifies a video in the path.
type VideoIDInput struct {
	ID string `path:"id" doc:"Video ID (ULID)"`
}

// GetVideo returns a single video.
func (h *VideoHandler) GetVideo(ctx context.Context, input *VideoIDInput) (*VideoOutput, error) {
	caller, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseVideoID(input.ID)
	if err != nil {
		return nil, err
	}

	video, err := h.videos.Get(ctx, id, caller)
	if err != nil {
		return nil, toHTTPError(ctx, h.logger, "getting video", err)
	}
	return &VideoOutput{Body: VideoFromModel(video)}, nil
}

// SetPrivacyInput is the input for changing privacy.
type SetPrivacyInput struct {
	ID   string `path:"id" doc:"Video ID (ULID)"`
	Body struct {
		IsPrivate bool `json:"isPrivate"`
	}
}

// SetPrivacy toggles the private flag.
func (h *VideoHandler) SetPrivacy(ctx context.Context, input *SetPrivacyInput) (*VideoOutput, error) {
	caller, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseVideoID(input.ID)
	if err != nil {
		return nil, err
	}

	video, err := h.privacy.SetPrivacy(ctx, id, input.Body.IsPrivate, caller)
	if err != nil {
		return nil, toHTTPError(ctx, h.logger, "setting privacy", err)
	}
	return &VideoOutput{Body: VideoFromModel(video)}, nil
}

// DeleteVideoOutput is empty; deletion answers 204.
type DeleteVideoOutput struct{}

// DeleteVideo removes a video and its assets.
func (h *VideoHandler) DeleteVideo(ctx context.Context, input *VideoIDInput) (*DeleteVideoOutput, error) {
	caller, err := requirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseVideoID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.videos.Delete(ctx, id, caller); err != nil {
		return nil, toHTTPError(ctx, h.logger, "deleting video", err)
	}
	return &DeleteVideoOutput{}, nil
}
