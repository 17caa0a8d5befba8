package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/transcoder"
)

// JobOutcome is how waiting on a job ended.
type JobOutcome string

const (
	JobOutcomeFinished JobOutcome = "Finished"
	JobOutcomeError    JobOutcome = "Error"
	JobOutcomeCanceled JobOutcome = "Canceled"
	JobOutcomeTimedOut JobOutcome = "TimedOut"
)

// JobResult reports the final observed state of a job.
type JobResult struct {
	Outcome JobOutcome
	State   transcoder.JobState
	// AssetRef is the first output asset of the job, when reported.
	AssetRef string
	// Error is the backend's failure detail for Error outcomes.
	Error  *transcoder.JobError
	Waited time.Duration
}

// JobPoller observes transcode jobs by polling their state.
type JobPoller struct {
	client    Transcoder
	transform string
	clock     Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewJobPoller creates a poller for jobs under the given transform.
func NewJobPoller(client Transcoder, transform string) *JobPoller {
	return &JobPoller{
		client:    client,
		transform: transform,
		clock:     RealClock(),
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (p *JobPoller) WithLogger(logger *slog.Logger) *JobPoller {
	p.logger = logger
	return p
}

// WithClock replaces the wall clock.
func (p *JobPoller) WithClock(clock Clock) *JobPoller {
	p.clock = clock
	return p
}

// WithMetrics sets the metrics recorder.
func (p *JobPoller) WithMetrics(m *observability.Metrics) *JobPoller {
	p.metrics = m
	return p
}

// CheckOnce fetches the job once. The result has an empty Outcome while the
// job is still running.
func (p *JobPoller) CheckOnce(ctx context.Context, jobRef string) (JobResult, error) {
	job, err := p.client.GetJob(ctx, p.transform, jobRef)
	if err != nil {
		return JobResult{}, fmt.Errorf("getting job %s: %w", jobRef, err)
	}
	return resultFromJob(job), nil
}

// AwaitTerminal polls the job every interval until it reaches a terminal
// state or timeout elapses. A timeout is reported as JobOutcomeTimedOut with
// a nil error. Transcoder outages are retried on the next tick until the
// deadline, after which the last error is returned; other errors return
// immediately. Cancelling ctx stops watching; the remote job is left alone.
func (p *JobPoller) AwaitTerminal(ctx context.Context, jobRef string, timeout, interval time.Duration) (JobResult, error) {
	start := p.clock.Now()
	deadline := start.Add(timeout)

	for {
		res, err := p.CheckOnce(ctx, jobRef)
		now := p.clock.Now()
		if err != nil {
			if !errors.Is(err, models.ErrTranscoderUnavailable) || !now.Before(deadline) {
				return JobResult{}, err
			}
			p.logger.WarnContext(ctx, "transcoder unavailable while polling job, retrying",
				slog.String("job", jobRef),
				slog.String("error", err.Error()))
		} else if p.settle(ctx, jobRef, &res, start, now, deadline) {
			return res, nil
		}

		wait := interval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return JobResult{}, ctx.Err()
		case <-p.clock.After(wait):
		}
	}
}

// settle records the wait on res and reports whether polling should stop.
func (p *JobPoller) settle(ctx context.Context, jobRef string, res *JobResult, start, now, deadline time.Time) bool {
	res.Waited = now.Sub(start)

	if res.Outcome != "" {
		p.metrics.PollerWait(ctx, string(res.Outcome), res.Waited)
		return true
	}
	if !now.Before(deadline) {
		res.Outcome = JobOutcomeTimedOut
		p.metrics.PollerWait(ctx, string(res.Outcome), res.Waited)
		p.logger.WarnContext(ctx, "gave up waiting for transcode job",
			slog.String("job", jobRef),
			slog.String("state", string(res.State)),
			slog.Duration("waited", res.Waited))
		return true
	}

	p.logger.DebugContext(ctx, "transcode job still running",
		slog.String("job", jobRef),
		slog.String("state", string(res.State)))
	return false
}

func resultFromJob(job *transcoder.Job) JobResult {
	res := JobResult{State: job.Properties.State}
	if len(job.Properties.Outputs) > 0 {
		res.AssetRef = job.Properties.Outputs[0].AssetName
	}
	switch job.Properties.State {
	case transcoder.JobStateFinished:
		res.Outcome = JobOutcomeFinished
	case transcoder.JobStateError:
		res.Outcome = JobOutcomeError
		res.Error = job.FirstError()
	case transcoder.JobStateCanceled:
		res.Outcome = JobOutcomeCanceled
	}
	return res
}
