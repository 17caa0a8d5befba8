package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Name prefixes of transcoder-side resources.
const (
	outputAssetPrefix = "stream-output-"
	jobPrefix         = "stream-job-"
	locatorPrefix     = "locator-"
)

// JobSubmission identifies a submitted transcode job and the asset it writes.
type JobSubmission struct {
	JobRef         string
	OutputAssetRef string
}

// JobSubmitter allocates output assets and submits transcode jobs.
type JobSubmitter struct {
	client   Transcoder
	newToken func() string
	logger   *slog.Logger
}

// NewJobSubmitter creates a new JobSubmitter.
func NewJobSubmitter(client Transcoder) *JobSubmitter {
	return &JobSubmitter{
		client:   client,
		newToken: func() string { return uuid.NewString() },
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *JobSubmitter) WithLogger(logger *slog.Logger) *JobSubmitter {
	s.logger = logger
	return s
}

// AllocateOutputAsset creates a fresh, uniquely named output asset.
func (s *JobSubmitter) AllocateOutputAsset(ctx context.Context) (string, error) {
	name := outputAssetPrefix + s.newToken()
	if _, err := s.client.CreateOrUpdateAsset(ctx, name); err != nil {
		return "", fmt.Errorf("creating output asset: %w", err)
	}
	return name, nil
}

// SubmitJob starts a job that reads sourceURL over HTTP and writes assetRef.
func (s *JobSubmitter) SubmitJob(ctx context.Context, sourceURL string, transform TransformHandle, assetRef string) (string, error) {
	name := jobPrefix + s.newToken()
	if _, err := s.client.CreateJob(ctx, transform.Name, name, sourceURL, assetRef); err != nil {
		return "", fmt.Errorf("submitting job: %w", err)
	}
	s.logger.InfoContext(ctx, "transcode job submitted",
		slog.String("job", name),
		slog.String("asset", assetRef),
		slog.String("transform", transform.Name))
	return name, nil
}

// SubmitEncodingJob allocates an output asset and submits a job into it.
func (s *JobSubmitter) SubmitEncodingJob(ctx context.Context, sourceURL string, transform TransformHandle) (JobSubmission, error) {
	assetRef, err := s.AllocateOutputAsset(ctx)
	if err != nil {
		return JobSubmission{}, err
	}
	jobRef, err := s.SubmitJob(ctx, sourceURL, transform, assetRef)
	if err != nil {
		return JobSubmission{OutputAssetRef: assetRef}, err
	}
	return JobSubmission{JobRef: jobRef, OutputAssetRef: assetRef}, nil
}
