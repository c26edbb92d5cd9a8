package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/learnloop/cortex/engine/infra/monitoring/metrics"
	"github.com/learnloop/cortex/engine/memory"
)

var _ memory.Metrics = (*MemoryMetrics)(nil)

var searchLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// MemoryMetrics instruments the Memory Engine (C8): per-operation counters
// by tier plus vector search and embedding generation latency.
type MemoryMetrics struct {
	storage           metric.Int64Counter
	retrieval         metric.Int64Counter
	search            metric.Int64Counter
	promotion         metric.Int64Counter
	vectorLatency     metric.Float64Histogram
	embeddingLatency  metric.Float64Histogram
	redisKeys         metric.Int64ObservableGauge
	redisKeysSnapshot int64
}

func newMemoryMetrics(meter metric.Meter) *MemoryMetrics {
	storage, err1 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("memory", "storage_total"),
		metric.WithDescription("Memory rows written, labeled by tier"),
	)
	retrieval, err2 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("memory", "retrieval_total"),
		metric.WithDescription("Memory rows read by id, labeled by tier"),
	)
	search, err3 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("memory", "search_total"),
		metric.WithDescription("Vector searches performed, labeled by tier"),
	)
	promotion, err4 := meter.Int64Counter(
		metrics.MetricNameWithSubsystem("memory", "promotion_total"),
		metric.WithDescription("Tier promotions, labeled by from_tier and to_tier"),
	)
	vectorLatency, err5 := meter.Float64Histogram(
		metrics.MetricName("vector_search_latency_seconds"),
		metric.WithDescription("Vector search latency including in-process reranking"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(searchLatencyBuckets...),
	)
	embeddingLatency, err6 := meter.Float64Histogram(
		metrics.MetricName("embedding_generation_latency_seconds"),
		metric.WithDescription("Embedding generation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(searchLatencyBuckets...),
	)
	m := &MemoryMetrics{
		storage:          storage,
		retrieval:        retrieval,
		search:           search,
		promotion:        promotion,
		vectorLatency:    vectorLatency,
		embeddingLatency: embeddingLatency,
	}
	redisKeys, err7 := meter.Int64ObservableGauge(
		metrics.MetricNameWithSubsystem("redis", "key_count"),
		metric.WithDescription("Last-observed Redis key count for the STM/ITM databases"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(m.redisKeysSnapshot)
			return nil
		}),
	)
	if err := firstErr(err1, err2, err3, err4, err5, err6, err7); err != nil {
		panic(fmt.Sprintf("monitoring: register memory instruments: %v", err))
	}
	m.redisKeys = redisKeys
	return m
}

func (m *MemoryMetrics) IncStorage(ctx context.Context, tier string) {
	m.storage.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (m *MemoryMetrics) IncRetrieval(ctx context.Context, tier string) {
	m.retrieval.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (m *MemoryMetrics) IncSearch(ctx context.Context, tier string) {
	m.search.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (m *MemoryMetrics) IncPromotion(ctx context.Context, fromTier, toTier string) {
	m.promotion.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_tier", fromTier),
		attribute.String("to_tier", toTier),
	))
}

func (m *MemoryMetrics) ObserveVectorSearchLatency(ctx context.Context, seconds float64) {
	m.vectorLatency.Record(ctx, seconds)
}

func (m *MemoryMetrics) ObserveEmbeddingLatency(ctx context.Context, seconds float64) {
	m.embeddingLatency.Record(ctx, seconds)
}

// SetRedisKeyCount updates the gauge sampled on the next collection pass.
func (m *MemoryMetrics) SetRedisKeyCount(count int64) {
	m.redisKeysSnapshot = count
}
