package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/notify"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/repository"
)

// ReviewService applies moderation transitions. Callers check the admin role.
type ReviewService struct {
	repo     repository.VideoRepository
	notifier notify.Notifier
	now      func() time.Time
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(repo repository.VideoRepository, notifier notify.Notifier) *ReviewService {
	return &ReviewService{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *ReviewService) WithLogger(logger *slog.Logger) *ReviewService {
	s.logger = logger
	return s
}

// WithMetrics sets the metrics recorder.
func (s *ReviewService) WithMetrics(m *observability.Metrics) *ReviewService {
	s.metrics = m
	return s
}

// Publish accepts a video awaiting review.
func (s *ReviewService) Publish(ctx context.Context, id models.ULID) (*models.Video, error) {
	v, err := s.transition(ctx, id, models.TransitionPublish, func() (bool, error) {
		return s.repo.Publish(ctx, id, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, v, notify.KindVideoApproved, "")
	return v, nil
}

// Reject declines a video awaiting review. An empty reason uses the default.
func (s *ReviewService) Reject(ctx context.Context, id models.ULID, reason string) (*models.Video, error) {
	if reason == "" {
		reason = models.DefaultRejectReason
	}
	v, err := s.transition(ctx, id, models.TransitionReject, func() (bool, error) {
		return s.repo.Reject(ctx, id, reason, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, v, notify.KindVideoRejected, reason)
	return v, nil
}

// Unreview returns a reviewed video to the review queue.
func (s *ReviewService) Unreview(ctx context.Context, id models.ULID) (*models.Video, error) {
	return s.transition(ctx, id, models.TransitionUnreview, func() (bool, error) {
		return s.repo.Unreview(ctx, id)
	})
}

// SetPrivacy hides or shows a video. Only the owner may change it.
func (s *ReviewService) SetPrivacy(ctx context.Context, id models.ULID, private bool, requester models.Principal) (*models.Video, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}
	if v == nil {
		return nil, models.ErrVideoNotFound
	}
	if v.OwnerID != requester.UserID {
		return nil, models.ErrForbidden
	}
	return s.transition(ctx, id, models.TransitionSetPrivacy, func() (bool, error) {
		return s.repo.SetPrivacy(ctx, id, private)
	})
}

// transition pre-checks t against the current status, then runs the
// conditional write. If the write matched no row the status changed
// underneath us, so the error reports the status we find now.
func (s *ReviewService) transition(ctx context.Context, id models.ULID, t models.Transition, write func() (bool, error)) (*models.Video, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}
	if v == nil {
		return nil, models.ErrVideoNotFound
	}
	if err := models.CheckTransition(v, t); err != nil {
		return nil, err
	}

	ok, err := write()
	if err != nil {
		return nil, fmt.Errorf("applying %s: %w", t, err)
	}

	fresh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}
	if fresh == nil {
		return nil, models.ErrVideoNotFound
	}
	if !ok {
		return nil, &models.TransitionError{Transition: string(t), From: fresh.Status()}
	}

	s.metrics.Transition(ctx, string(t))
	observability.WithVideo(s.logger, id.String()).InfoContext(ctx, "video transitioned",
		slog.String("transition", string(t)),
		slog.String("status", string(fresh.Status())))
	return fresh, nil
}

func (s *ReviewService) notify(ctx context.Context, v *models.Video, kind notify.Kind, reason string) {
	if s.notifier == nil {
		return
	}
	n := notify.Notification{
		Kind:       kind,
		VideoID:    v.ID.String(),
		VideoName:  v.Name,
		OwnerEmail: v.OwnerEmail,
		Reason:     reason,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "sending review notification failed",
			slog.String("video_id", n.VideoID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}
}
