package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetricsWithMeter(provider.Meter("test"), nil)

	ctx := context.Background()
	m.WebhookEvent(ctx, "JobOutputFinished", "applied")
	m.WebhookEvent(ctx, "JobOutputFinished", "duplicate")
	m.Submission(ctx, "submitted")
	m.Transition(ctx, "publish")
	m.Reconciled(ctx, "finished")
	m.PollerWait(ctx, "Finished", 4*time.Second)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data[MetricWebhookEvents]))
	assert.Equal(t, int64(1), sumOf(t, data[MetricEncodingSubmissions]))
	assert.Equal(t, int64(1), sumOf(t, data[MetricReviewTransitions]))
	assert.Equal(t, int64(1), sumOf(t, data[MetricReconcileOutcomes]))

	hist, ok := data[MetricPollerWait].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 4.0, hist.DataPoints[0].Sum, 0.001)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.WebhookEvent(ctx, "x", "y")
		m.Submission(ctx, "x")
		m.Transition(ctx, "x")
		m.Reconciled(ctx, "x")
		m.PollerWait(ctx, "x", time.Second)
	})
}
