package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/repository"
)

// Messages persisted for job outcomes that carry no detail of their own.
const (
	canceledMessage = "transcode job canceled"
	unknownError    = "Unknown error"
)

// CompletionService applies terminal job outcomes to every video that
// references the output asset. Webhooks, pollers and the reconciler all
// funnel through it.
type CompletionService struct {
	repo     repository.VideoRepository
	resolver *CompletionResolver
	logger   *slog.Logger
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(repo repository.VideoRepository, resolver *CompletionResolver) *CompletionService {
	return &CompletionService{repo: repo, resolver: resolver, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (s *CompletionService) WithLogger(logger *slog.Logger) *CompletionService {
	s.logger = logger
	return s
}

// Finish resolves streaming URLs for assetRef and stores them. An endpoint
// that is not serving, or a locator with no playable paths, fails the videos
// permanently. Transcoder outages are returned so the caller can retry.
// Assets with no video left in Encoding are skipped without resolving.
func (s *CompletionService) Finish(ctx context.Context, assetRef string) (int64, error) {
	pending, err := s.repo.CountEncodingByAsset(ctx, assetRef)
	if err != nil {
		return 0, err
	}
	if pending == 0 {
		s.logger.DebugContext(ctx, "no encoding videos for asset, skipping",
			slog.String("asset", assetRef))
		return 0, nil
	}

	out, err := s.resolver.Resolve(ctx, assetRef)
	if err != nil {
		if errors.Is(err, models.ErrEndpointNotServing) || errors.Is(err, models.ErrNoPlayableOutput) {
			if _, failErr := s.Fail(ctx, assetRef, err.Error()); failErr != nil {
				return 0, failErr
			}
		}
		return 0, fmt.Errorf("resolving asset %s: %w", assetRef, err)
	}

	n, err := s.repo.ApplyStreamingOutputByAsset(ctx, assetRef, out)
	if err != nil {
		return 0, fmt.Errorf("applying streaming output: %w", err)
	}
	s.logger.InfoContext(ctx, "encoding finished",
		slog.String("asset", assetRef),
		slog.Int64("videos", n))
	return n, nil
}

// Fail records a terminal failure for assetRef.
func (s *CompletionService) Fail(ctx context.Context, assetRef, message string) (int64, error) {
	if message == "" {
		message = unknownError
	}
	n, err := s.repo.FailByAsset(ctx, assetRef, message)
	if err != nil {
		return 0, fmt.Errorf("recording encoding error: %w", err)
	}
	s.logger.WarnContext(ctx, "encoding failed",
		slog.String("asset", assetRef),
		slog.String("message", message),
		slog.Int64("videos", n))
	return n, nil
}

// ApplyResult applies a poller result for assetRef. Timeouts change nothing.
func (s *CompletionService) ApplyResult(ctx context.Context, assetRef string, res JobResult) error {
	switch res.Outcome {
	case JobOutcomeFinished:
		_, err := s.Finish(ctx, assetRef)
		return err
	case JobOutcomeError:
		msg := unknownError
		if res.Error != nil && res.Error.Message != "" {
			msg = res.Error.Message
		}
		_, err := s.Fail(ctx, assetRef, msg)
		return err
	case JobOutcomeCanceled:
		_, err := s.Fail(ctx, assetRef, canceledMessage)
		return err
	default:
		return nil
	}
}
