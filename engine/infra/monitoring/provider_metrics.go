package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnloop/cortex/engine/infra/monitoring/metrics"
	"github.com/learnloop/cortex/engine/llm/orchestrator"
)

var _ orchestrator.MetricsRecorder = (*ProviderMetrics)(nil)

var providerLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30}

// ProviderMetrics instruments the LLM Provider Orchestrator (C4) and
// implements orchestrator.MetricsRecorder.
type ProviderMetrics struct {
	latency metric.Float64Histogram
	success metric.Int64Counter
	failure metric.Int64Counter
}

func newProviderMetrics(meter metric.Meter) *ProviderMetrics {
	latency, err1 := meter.Float64Histogram(
		metrics.MetricName("provider_latency_seconds"),
		metric.WithDescription("Latency of successful provider generations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(providerLatencyBuckets...),
	)
	success, err2 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("provider", "success_total"),
		metric.WithDescription("Successful provider generations"),
	)
	failure, err3 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("provider", "failure_total"),
		metric.WithDescription("Failed provider generations, labeled by error class"),
	)
	if err := firstErr(err1, err2, err3); err != nil {
		panic(fmt.Sprintf("monitoring: register provider instruments: %v", err))
	}
	return &ProviderMetrics{latency: latency, success: success, failure: failure}
}

func (m *ProviderMetrics) ObserveLatency(ctx context.Context, providerName, model string, seconds float64) {
	m.latency.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("model", model),
	))
}

func (m *ProviderMetrics) IncSuccess(ctx context.Context, providerName, model string) {
	m.success.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("model", model),
	))
}

func (m *ProviderMetrics) IncFailure(ctx context.Context, providerName, errorClass string) {
	m.failure.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("error_class", errorClass),
	))
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
