package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnloop/cortex/engine/distillation"
	"github.com/learnloop/cortex/engine/infra/monitoring/metrics"
)

var _ distillation.Metrics = (*DistillationMetrics)(nil)

// DistillationMetrics instruments the Nightly Distillation Worker (C10).
type DistillationMetrics struct {
	runs      metric.Int64Counter
	knowledge metric.Int64Counter
	duration  metric.Float64Histogram
}

func newDistillationMetrics(meter metric.Meter) *DistillationMetrics {
	runs, err1 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("distillation", "runs_total"),
		metric.WithDescription("Distillation runs, labeled by outcome"),
	)
	knowledge, err2 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("distillation", "knowledge_total"),
		metric.WithDescription("Distilled knowledge rows written"),
	)
	duration, err3 := meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("distillation", "run_duration_seconds"),
		metric.WithDescription("Wall-clock duration of a full distillation run"),
		metric.WithUnit("s"),
	)
	if err := firstErr(err1, err2, err3); err != nil {
		panic(fmt.Sprintf("monitoring: register distillation instruments: %v", err))
	}
	return &DistillationMetrics{runs: runs, knowledge: knowledge, duration: duration}
}

func (m *DistillationMetrics) IncRun(ctx context.Context, outcome string) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *DistillationMetrics) AddKnowledge(ctx context.Context, count int64) {
	m.knowledge.Add(ctx, count)
}

func (m *DistillationMetrics) ObserveDuration(ctx context.Context, seconds float64) {
	m.duration.Record(ctx, seconds)
}
