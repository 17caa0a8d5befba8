package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/repository"
)

// Completion modes.
const (
	CompletionModeWebhook = "webhook"
	CompletionModePoll    = "poll"
)

// CreateVideoInput is an upload handoff: the source bytes are already stored.
type CreateVideoInput struct {
	Name        string
	Description string
	Type        models.VideoType
	BlobURL     string
}

// EncodingConfig selects the transform and how completion is observed.
type EncodingConfig struct {
	TransformName  string
	PresetName     string
	CompletionMode string
	PollInterval   time.Duration
	PollTimeout    time.Duration
}

// EncodingService creates videos and starts their transcode jobs.
type EncodingService struct {
	repo       repository.VideoRepository
	registry   *TransformRegistry
	submitter  *JobSubmitter
	poller     *JobPoller
	completion *CompletionService
	dispatcher Dispatcher
	config     EncodingConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewEncodingService creates a new EncodingService.
func NewEncodingService(
	repo repository.VideoRepository,
	registry *TransformRegistry,
	submitter *JobSubmitter,
	config EncodingConfig,
) *EncodingService {
	return &EncodingService{
		repo:       repo,
		registry:   registry,
		submitter:  submitter,
		dispatcher: inlineDispatcher{},
		config:     config,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *EncodingService) WithLogger(logger *slog.Logger) *EncodingService {
	s.logger = logger
	return s
}

// WithMetrics sets the metrics recorder.
func (s *EncodingService) WithMetrics(m *observability.Metrics) *EncodingService {
	s.metrics = m
	return s
}

// WithPolling enables background completion polling through dispatcher.
// It only takes effect when the completion mode is poll.
func (s *EncodingService) WithPolling(poller *JobPoller, completion *CompletionService, dispatcher Dispatcher) *EncodingService {
	s.poller = poller
	s.completion = completion
	if dispatcher != nil {
		s.dispatcher = dispatcher
	}
	return s
}

// StartEncoding persists a new video and submits its transcode job.
//
// The asset ref is stored as soon as the asset exists so a completion webhook
// that races the job submission still finds the row. Any failure after the
// row is created is recorded as the video's encoding error; the returned
// video reflects that.
func (s *EncodingService) StartEncoding(ctx context.Context, in CreateVideoInput, owner models.Principal) (*models.Video, error) {
	video := &models.Video{
		OwnerID:     owner.UserID,
		OwnerEmail:  owner.Email,
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		BlobURL:     in.BlobURL,
	}
	if err := video.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("creating video: %w", err)
	}

	logger := observability.WithVideo(s.logger, video.ID.String())

	sub, err := s.submit(ctx, video)
	if err != nil {
		s.metrics.Submission(ctx, "error")
		logger.ErrorContext(ctx, "starting encoding failed", slog.String("error", err.Error()))
		if markErr := s.repo.MarkEncodingError(ctx, video.ID, err.Error()); markErr != nil {
			logger.ErrorContext(ctx, "recording encoding error failed", slog.String("error", markErr.Error()))
		}
		return s.reload(ctx, video), err
	}
	s.metrics.Submission(ctx, "submitted")

	if s.config.CompletionMode == CompletionModePoll && s.poller != nil && s.completion != nil {
		s.dispatchAwait(ctx, sub)
	}

	return s.reload(ctx, video), nil
}

func (s *EncodingService) submit(ctx context.Context, video *models.Video) (JobSubmission, error) {
	transform, err := s.registry.EnsureTransform(ctx, s.config.TransformName, s.config.PresetName)
	if err != nil {
		return JobSubmission{}, err
	}

	assetRef, err := s.submitter.AllocateOutputAsset(ctx)
	if err != nil {
		return JobSubmission{}, err
	}
	if err := s.repo.SetAssetRef(ctx, video.ID, assetRef); err != nil {
		return JobSubmission{}, fmt.Errorf("saving asset ref: %w", err)
	}

	jobRef, err := s.submitter.SubmitJob(ctx, video.BlobURL, transform, assetRef)
	if err != nil {
		return JobSubmission{OutputAssetRef: assetRef}, err
	}
	if err := s.repo.SetJobRef(ctx, video.ID, jobRef); err != nil {
		return JobSubmission{OutputAssetRef: assetRef}, fmt.Errorf("saving job ref: %w", err)
	}
	return JobSubmission{JobRef: jobRef, OutputAssetRef: assetRef}, nil
}

func (s *EncodingService) dispatchAwait(ctx context.Context, sub JobSubmission) {
	err := s.dispatcher.Submit("await "+sub.JobRef, func(taskCtx context.Context) {
		res, err := s.poller.AwaitTerminal(taskCtx, sub.JobRef, s.config.PollTimeout, s.config.PollInterval)
		if err != nil {
			s.logger.WarnContext(taskCtx, "polling transcode job failed",
				slog.String("job", sub.JobRef),
				slog.String("error", err.Error()))
			return
		}
		if err := s.completion.ApplyResult(taskCtx, sub.OutputAssetRef, res); err != nil {
			s.logger.ErrorContext(taskCtx, "applying job result failed",
				slog.String("job", sub.JobRef),
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		// The reconciler picks the job up later.
		s.logger.WarnContext(ctx, "could not dispatch job poller",
			slog.String("job", sub.JobRef),
			slog.String("error", err.Error()))
	}
}

func (s *EncodingService) reload(ctx context.Context, video *models.Video) *models.Video {
	fresh, err := s.repo.GetByID(ctx, video.ID)
	if err != nil || fresh == nil {
		return video
	}
	return fresh
}
