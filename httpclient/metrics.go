package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scope is the instrumentation scope name for OpenTelemetry.
const scope = "github.com/kroma-labs/quotaclient-go/httpclient"

// clientMetrics holds the metric instruments for client operations.
type clientMetrics struct {
	// requestDuration measures whole-call duration in seconds.
	requestDuration metric.Float64Histogram

	// retryAttempts counts status-driven retry attempts.
	retryAttempts metric.Int64Counter

	// throttleDelay measures how long admissions waited on quota state.
	throttleDelay metric.Float64Histogram

	// queueDepth tracks the number of queued requests.
	queueDepth metric.Int64UpDownCounter

	// quotaUpdates counts header-driven quota reconfigurations.
	quotaUpdates metric.Int64Counter
}

// newClientMetrics creates the instruments. A nil return means metric
// creation failed and recording becomes a no-op.
func newClientMetrics(meter metric.Meter) *clientMetrics {
	m := &clientMetrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of client calls including throttling and retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil
	}

	m.retryAttempts, err = meter.Int64Counter(
		"http.client.retry.attempts",
		metric.WithDescription("Status-driven retry attempts"),
	)
	if err != nil {
		return nil
	}

	m.throttleDelay, err = meter.Float64Histogram(
		"http.client.throttle.delay",
		metric.WithDescription("Admission delay imposed by quota windows"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil
	}

	m.queueDepth, err = meter.Int64UpDownCounter(
		"http.client.queue.depth",
		metric.WithDescription("Requests currently parked on the priority queues"),
	)
	if err != nil {
		return nil
	}

	m.quotaUpdates, err = meter.Int64Counter(
		"http.client.quota.updates",
		metric.WithDescription("Header-driven quota reconfigurations"),
	)
	if err != nil {
		return nil
	}

	return m
}

func (m *clientMetrics) recordRequest(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *clientMetrics) recordRetries(ctx context.Context, n int, attrs []attribute.KeyValue) {
	if m == nil || n == 0 {
		return
	}
	m.retryAttempts.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func (m *clientMetrics) recordThrottleDelay(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.throttleDelay.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *clientMetrics) addQueueDepth(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(ctx, delta)
}

func (m *clientMetrics) recordQuotaUpdate(ctx context.Context, group string) {
	if m == nil {
		return
	}
	m.quotaUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("quota.group", group)))
}
