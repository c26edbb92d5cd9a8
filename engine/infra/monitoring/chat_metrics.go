package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnloop/cortex/engine/chat"
	"github.com/learnloop/cortex/engine/infra/monitoring/metrics"
)

var _ chat.Metrics = (*ChatMetrics)(nil)

// ChatMetrics instruments the Chat Coordinator (C11).
type ChatMetrics struct {
	messages      metric.Int64Counter
	tokens        metric.Int64Counter
	activeSession metric.Int64UpDownCounter
}

func newChatMetrics(meter metric.Meter) *ChatMetrics {
	messages, err1 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("chat", "messages_total"),
		metric.WithDescription("Chat turns processed, labeled by outcome status"),
	)
	tokens, err2 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("chat", "tokens_total"),
		metric.WithDescription("Tokens counted, labeled by direction (prompt/completion)"),
	)
	active, err3 := meter.Int64UpDownCounter(
		metrics.MetricNameWithSubsystem("chat", "active_sessions"),
		metric.WithDescription("Sessions with at least one in-flight turn"),
	)
	if err := firstErr(err1, err2, err3); err != nil {
		panic(fmt.Sprintf("monitoring: register chat instruments: %v", err))
	}
	return &ChatMetrics{messages: messages, tokens: tokens, activeSession: active}
}

// IncMessage records one completed turn, labeled by its terminal status.
func (m *ChatMetrics) IncMessage(ctx context.Context, status string) {
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// AddTokens records token counts for a turn's prompt or completion side.
func (m *ChatMetrics) AddTokens(ctx context.Context, direction string, count int64) {
	m.tokens.Add(ctx, count, metric.WithAttributes(attribute.String("direction", direction)))
}

// SessionStarted/SessionEnded bracket an in-flight turn for the active
// session gauge.
func (m *ChatMetrics) SessionStarted(ctx context.Context) { m.activeSession.Add(ctx, 1) }
func (m *ChatMetrics) SessionEnded(ctx context.Context)   { m.activeSession.Add(ctx, -1) }
