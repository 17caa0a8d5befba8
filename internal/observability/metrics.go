package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jmylchreest/vodarr"

// Metric names.
const (
	MetricWebhookEvents       = "vodarr.webhook.events"
	MetricEncodingSubmissions = "vodarr.encoding.submissions"
	MetricReviewTransitions   = "vodarr.review.transitions"
	MetricReconcileOutcomes   = "vodarr.reconcile.outcomes"
	MetricPollerWait          = "vodarr.poller.wait"
)

// Metrics records orchestrator counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	webhookEvents     metric.Int64Counter
	submissions       metric.Int64Counter
	transitions       metric.Int64Counter
	reconcileOutcomes metric.Int64Counter
	pollerWait        metric.Float64Histogram
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics(logger *slog.Logger) *Metrics {
	return NewMetricsWithMeter(otel.GetMeterProvider().Meter(meterName), logger)
}

// NewMetricsWithMeter registers instruments on meter. Registration failures
// are logged and leave the affected instrument disabled.
func NewMetricsWithMeter(meter metric.Meter, logger *slog.Logger) *Metrics {
	m := &Metrics{}
	if meter == nil {
		return m
	}
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	if m.webhookEvents, err = meter.Int64Counter(MetricWebhookEvents,
		metric.WithDescription("Transcoder webhook events by kind and outcome")); err != nil {
		logger.Warn("registering metric", slog.String("metric", MetricWebhookEvents), slog.String("error", err.Error()))
	}
	if m.submissions, err = meter.Int64Counter(MetricEncodingSubmissions,
		metric.WithDescription("Transcode job submissions by outcome")); err != nil {
		logger.Warn("registering metric", slog.String("metric", MetricEncodingSubmissions), slog.String("error", err.Error()))
	}
	if m.transitions, err = meter.Int64Counter(MetricReviewTransitions,
		metric.WithDescription("Applied review transitions")); err != nil {
		logger.Warn("registering metric", slog.String("metric", MetricReviewTransitions), slog.String("error", err.Error()))
	}
	if m.reconcileOutcomes, err = meter.Int64Counter(MetricReconcileOutcomes,
		metric.WithDescription("Reconciler job checks by outcome")); err != nil {
		logger.Warn("registering metric", slog.String("metric", MetricReconcileOutcomes), slog.String("error", err.Error()))
	}
	if m.pollerWait, err = meter.Float64Histogram(MetricPollerWait,
		metric.WithDescription("Time spent waiting for a terminal job state"), metric.WithUnit("s")); err != nil {
		logger.Warn("registering metric", slog.String("metric", MetricPollerWait), slog.String("error", err.Error()))
	}
	return m
}

// WebhookEvent counts one processed webhook event.
func (m *Metrics) WebhookEvent(ctx context.Context, kind, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// Submission counts one transcode submission attempt.
func (m *Metrics) Submission(ctx context.Context, outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Transition counts one applied review transition.
func (m *Metrics) Transition(ctx context.Context, transition string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}

// Reconciled counts one reconciler job check.
func (m *Metrics) Reconciled(ctx context.Context, outcome string) {
	if m == nil || m.reconcileOutcomes == nil {
		return
	}
	m.reconcileOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// PollerWait records how long a poller waited and how it ended.
func (m *Metrics) PollerWait(ctx context.Context, result string, waited time.Duration) {
	if m == nil || m.pollerWait == nil {
		return
	}
	m.pollerWait.Record(ctx, waited.Seconds(), metric.WithAttributes(attribute.String("result", result)))
}
