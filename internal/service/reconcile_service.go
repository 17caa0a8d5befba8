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

// ReconcileReport summarises one sweep.
type ReconcileReport struct {
	Checked  int
	Finished int
	Failed   int
	Running  int
	Errors   int
}

// ReconcileService catches completions that were never delivered by looking
// at videos stuck in Encoding and checking their jobs directly.
type ReconcileService struct {
	repo       repository.VideoRepository
	poller     *JobPoller
	completion *CompletionService
	grace      time.Duration
	batch      int
	now        func() time.Time
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewReconcileService creates a reconciler that considers videos older than
// grace, at most batch per sweep.
func NewReconcileService(repo repository.VideoRepository, poller *JobPoller, completion *CompletionService, grace time.Duration, batch int) *ReconcileService {
	if batch < 1 {
		batch = 50
	}
	return &ReconcileService{
		repo:       repo,
		poller:     poller,
		completion: completion,
		grace:      grace,
		batch:      batch,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *ReconcileService) WithLogger(logger *slog.Logger) *ReconcileService {
	s.logger = logger
	return s
}

// WithMetrics sets the metrics recorder.
func (s *ReconcileService) WithMetrics(m *observability.Metrics) *ReconcileService {
	s.metrics = m
	return s
}

// Reconcile runs one sweep. It satisfies scheduler.Sweeper.
func (s *ReconcileService) Reconcile(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep checks each stuck video's job once and applies terminal outcomes.
// Per-video failures are counted, not returned.
func (s *ReconcileService) Sweep(ctx context.Context) (report ReconcileReport, err error) {
	done := observability.TimedOperationWithError(ctx, s.logger, "reconcile", &err)
	defer done()

	stuck, err := s.repo.FindStuckEncoding(ctx, s.now().Add(-s.grace), s.batch)
	if err != nil {
		return report, fmt.Errorf("finding stuck videos: %w", err)
	}

	for _, v := range stuck {
		report.Checked++
		outcome := s.check(ctx, v)
		switch outcome {
		case "finished":
			report.Finished++
		case "failed":
			report.Failed++
		case "running":
			report.Running++
		default:
			report.Errors++
		}
		s.metrics.Reconciled(ctx, outcome)
	}

	if report.Checked > 0 {
		s.logger.InfoContext(ctx, "reconcile sweep complete",
			slog.Int("checked", report.Checked),
			slog.Int("finished", report.Finished),
			slog.Int("failed", report.Failed),
			slog.Int("running", report.Running),
			slog.Int("errors", report.Errors))
	}
	return report, nil
}

func (s *ReconcileService) check(ctx context.Context, v *models.Video) string {
	logger := observability.WithVideo(s.logger, v.ID.String())
	assetRef := models.StringVal(v.TranscodeAssetRef)
	jobRef := models.StringVal(v.TranscodeJobRef)

	if jobRef == "" {
		// The asset was allocated but the job never recorded.
		if _, err := s.completion.Fail(ctx, assetRef, "transcode job was never submitted"); err != nil {
			logger.ErrorContext(ctx, "failing orphaned asset", slog.String("error", err.Error()))
			return "error"
		}
		return "failed"
	}

	res, err := s.poller.CheckOnce(ctx, jobRef)
	if err != nil {
		logger.WarnContext(ctx, "checking job failed", slog.String("job", jobRef), slog.String("error", err.Error()))
		return "error"
	}
	if res.Outcome == "" {
		return "running"
	}
	if err := s.completion.ApplyResult(ctx, assetRef, res); err != nil {
		logger.WarnContext(ctx, "applying job result failed", slog.String("job", jobRef), slog.String("error", err.Error()))
		if res.Outcome == JobOutcomeFinished {
			// Finish persists hard resolution failures itself.
			fresh, getErr := s.repo.GetByID(ctx, v.ID)
			if getErr == nil && fresh != nil && fresh.EncodingError != nil {
				return "failed"
			}
		}
		return "error"
	}
	if res.Outcome == JobOutcomeFinished {
		return "finished"
	}
	return "failed"
}
