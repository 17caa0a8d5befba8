package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/vodarr/internal/dedupe"
	"github.com/jmylchreest/vodarr/internal/eventgrid"
	"github.com/jmylchreest/vodarr/internal/httpclient"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/observability"
)

// Webhook dispatch modes.
const (
	WebhookModeSync  = "sync"
	WebhookModeAsync = "async"
)

// Webhook outcomes recorded in metrics.
const (
	outcomeApplied   = "applied"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeError     = "error"
	outcomeQueued    = "queued"
)

// WebhookResult is the acknowledgement body for a delivery.
type WebhookResult struct {
	ValidationCode string `json:"validationCode,omitempty"`
}

// WebhookService applies transcoder events to videos.
type WebhookService struct {
	completion *CompletionService
	ledger     dedupe.Ledger
	dispatcher Dispatcher
	http       *httpclient.Client
	mode       string
	timeout    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewWebhookService creates a new WebhookService in sync mode with an
// in-memory dedupe ledger.
func NewWebhookService(completion *CompletionService) *WebhookService {
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	return &WebhookService{
		completion: completion,
		ledger:     dedupe.NewMemory(24 * time.Hour),
		dispatcher: inlineDispatcher{},
		http:       httpclient.New(cfg),
		mode:       WebhookModeSync,
		timeout:    10 * time.Second,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *WebhookService) WithLogger(logger *slog.Logger) *WebhookService {
	s.logger = logger
	return s
}

// WithMetrics sets the metrics recorder.
func (s *WebhookService) WithMetrics(m *observability.Metrics) *WebhookService {
	s.metrics = m
	return s
}

// WithLedger sets the event dedupe ledger.
func (s *WebhookService) WithLedger(ledger dedupe.Ledger) *WebhookService {
	s.ledger = ledger
	return s
}

// WithDispatcher sets where async work and validation callbacks run.
func (s *WebhookService) WithDispatcher(d Dispatcher) *WebhookService {
	s.dispatcher = d
	return s
}

// WithMode selects sync or async handling of completion events.
func (s *WebhookService) WithMode(mode string) *WebhookService {
	s.mode = mode
	return s
}

// WithValidationClient sets the client and timeout used for the
// subscription handshake callback.
func (s *WebhookService) WithValidationClient(c *httpclient.Client, timeout time.Duration) *WebhookService {
	if c != nil {
		s.http = c
	}
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// Handle processes one delivery. In sync mode the returned error is the first
// event that could not be applied, and the delivery should be retried.
// Malformed and unknown events never produce an error.
func (s *WebhookService) Handle(ctx context.Context, events []eventgrid.Event) (*WebhookResult, error) {
	result := &WebhookResult{}
	var firstErr error

	for _, ev := range events {
		kind := eventgrid.Kind(ev)
		meta := ev.Meta()
		logger := s.logger.With(
			slog.String("event_id", meta.ID),
			slog.String("event_type", meta.EventType))

		switch e := ev.(type) {
		case *eventgrid.SubscriptionValidation:
			if result.ValidationCode == "" {
				result.ValidationCode = e.ValidationCode
			}
			s.scheduleValidation(ctx, e, logger)
			s.metrics.WebhookEvent(ctx, kind, outcomeApplied)

		case *eventgrid.Malformed:
			logger.WarnContext(ctx, "ignoring malformed webhook event", slog.String("error", e.Err.Error()))
			s.metrics.WebhookEvent(ctx, kind, outcomeIgnored)

		case *eventgrid.Unknown:
			logger.DebugContext(ctx, "ignoring unhandled webhook event")
			s.metrics.WebhookEvent(ctx, kind, outcomeIgnored)

		case *eventgrid.JobOutputFinished, *eventgrid.JobOutputErrored:
			if s.mode == WebhookModeAsync {
				err := s.dispatcher.Submit("webhook "+meta.ID, func(taskCtx context.Context) {
					_ = s.apply(taskCtx, ev, logger)
				})
				if err != nil {
					s.metrics.WebhookEvent(ctx, kind, outcomeError)
					if firstErr == nil {
						firstErr = fmt.Errorf("queueing event %s: %w", meta.ID, err)
					}
					continue
				}
				s.metrics.WebhookEvent(ctx, kind, outcomeQueued)
				continue
			}
			if err := s.apply(ctx, ev, logger); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return result, firstErr
}

// apply runs one completion event unless the ledger has already seen it.
func (s *WebhookService) apply(ctx context.Context, ev eventgrid.Event, logger *slog.Logger) error {
	meta := ev.Meta()
	kind := eventgrid.Kind(ev)

	seen, err := s.ledger.Seen(ctx, meta.ID)
	if err != nil {
		logger.WarnContext(ctx, "dedupe lookup failed, applying anyway", slog.String("error", err.Error()))
	}
	if seen {
		logger.DebugContext(ctx, "skipping duplicate webhook event")
		s.metrics.WebhookEvent(ctx, kind, outcomeDuplicate)
		return nil
	}

	outcome := outcomeApplied
	switch e := ev.(type) {
	case *eventgrid.JobOutputFinished:
		_, err = s.completion.Finish(ctx, e.AssetName)
		if errors.Is(err, models.ErrEndpointNotServing) || errors.Is(err, models.ErrNoPlayableOutput) {
			outcome, err = outcomeFailed, nil
		}
	case *eventgrid.JobOutputErrored:
		_, err = s.completion.Fail(ctx, e.AssetName, e.ErrorMessage)
		outcome = outcomeFailed
	}
	if err != nil {
		logger.ErrorContext(ctx, "applying webhook event failed", slog.String("error", err.Error()))
		s.metrics.WebhookEvent(ctx, kind, outcomeError)
		return fmt.Errorf("applying event %s: %w", meta.ID, err)
	}

	if err := s.ledger.Mark(ctx, meta.ID); err != nil {
		logger.WarnContext(ctx, "dedupe mark failed", slog.String("error", err.Error()))
	}
	s.metrics.WebhookEvent(ctx, kind, outcome)
	return nil
}

// scheduleValidation calls the handshake URL once in the background.
func (s *WebhookService) scheduleValidation(ctx context.Context, e *eventgrid.SubscriptionValidation, logger *slog.Logger) {
	if e.ValidationURL == "" {
		return
	}
	if seen, _ := s.ledger.Seen(ctx, e.ID); seen {
		return
	}
	if err := s.ledger.Mark(ctx, e.ID); err != nil {
		logger.WarnContext(ctx, "dedupe mark failed", slog.String("error", err.Error()))
	}

	url := e.ValidationURL
	err := s.dispatcher.Submit("validate "+e.ID, func(taskCtx context.Context) {
		callCtx, cancel := context.WithTimeout(taskCtx, s.timeout)
		defer cancel()
		if err := s.callValidationURL(callCtx, url); err != nil {
			logger.WarnContext(callCtx, "subscription validation callback failed", slog.String("error", err.Error()))
			return
		}
		logger.InfoContext(callCtx, "subscription validated")
	})
	if err != nil {
		logger.WarnContext(ctx, "could not dispatch validation callback", slog.String("error", err.Error()))
	}
}

func (s *WebhookService) callValidationURL(ctx context.Context, url string) error {
	resp, err := s.http.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("calling validation url: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("calling validation url: status %d", resp.StatusCode)
	}
	return nil
}
