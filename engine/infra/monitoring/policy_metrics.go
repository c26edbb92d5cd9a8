package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnloop/cortex/engine/infra/monitoring/metrics"
	"github.com/learnloop/cortex/engine/reflection"
)

var _ reflection.Metrics = (*PolicyMetrics)(nil)

var alignmentScoreBuckets = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// PolicyMetrics instruments the Policy Validator (C1).
type PolicyMetrics struct {
	validation metric.Int64Counter
	violation  metric.Int64Counter
	audit      metric.Int64Counter
	alignment  metric.Float64Histogram
}

func newPolicyMetrics(meter metric.Meter) *PolicyMetrics {
	validation, err1 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("policy", "validation_total"),
		metric.WithDescription("Content validations, labeled by result (passed/warning/failed)"),
	)
	violation, err2 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("policy", "violation_total"),
		metric.WithDescription("Pattern matches, labeled by type (harmful/unethical)"),
	)
	audit, err3 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("audit", "event_total"),
		metric.WithDescription("Policy audit log entries, labeled by action type"),
	)
	alignment, err4 := meter.Float64Histogram(
		metrics.MetricName("alignment_score"),
		metric.WithDescription("Overall alignment scores produced by validate_alignment"),
		metric.WithExplicitBucketBoundaries(alignmentScoreBuckets...),
	)
	if err := firstErr(err1, err2, err3, err4); err != nil {
		panic(fmt.Sprintf("monitoring: register policy instruments: %v", err))
	}
	return &PolicyMetrics{validation: validation, violation: violation, audit: audit, alignment: alignment}
}

func (m *PolicyMetrics) IncValidation(ctx context.Context, result string) {
	m.validation.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *PolicyMetrics) IncViolation(ctx context.Context, violationType string) {
	m.violation.Add(ctx, 1, metric.WithAttributes(attribute.String("type", violationType)))
}

func (m *PolicyMetrics) IncAudit(ctx context.Context, action string) {
	m.audit.Add(ctx, 1, metric.WithAttributes(attribute.String("type", action)))
}

func (m *PolicyMetrics) ObserveAlignment(ctx context.Context, score float64) {
	m.alignment.Record(ctx, score)
}
