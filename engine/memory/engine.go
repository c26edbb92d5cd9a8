package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/memory/store"
	"github.com/learnloop/cortex/engine/usage"
	"github.com/learnloop/cortex/pkg/config"
	"github.com/learnloop/cortex/pkg/logger"
)

const promptTruncateLen = 200

// Embedder is the subset of the Embedding Service (C2) the engine needs.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Metrics is the subset of instrumentation the engine records against.
// monitoring.MemoryMetrics satisfies this without the package depending
// on the monitoring/otel stack directly.
type Metrics interface {
	IncStorage(ctx context.Context, tier string)
	IncRetrieval(ctx context.Context, tier string)
	IncSearch(ctx context.Context, tier string)
	IncPromotion(ctx context.Context, fromTier, toTier string)
	ObserveVectorSearchLatency(ctx context.Context, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) IncStorage(context.Context, string)                  {}
func (noopMetrics) IncRetrieval(context.Context, string)                {}
func (noopMetrics) IncSearch(context.Context, string)                   {}
func (noopMetrics) IncPromotion(context.Context, string, string)        {}
func (noopMetrics) ObserveVectorSearchLatency(context.Context, float64) {}

// Engine is the Memory Engine (C8): the orchestration layer over C2
// (embeddings), C5 (Redis tiers), C6 (relational store), and C7 (usage
// ledger).
type Engine struct {
	repo     Repository
	redis    *store.RedisStore
	embedder Embedder
	ledger   *usage.Ledger
	cfg      *config.Config
	metrics  Metrics
}

// New builds an Engine. metrics may be nil, in which case every
// observation is a no-op.
func New(repo Repository, redis *store.RedisStore, embedder Embedder, ledger *usage.Ledger, cfg *config.Config, metrics Metrics) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Engine{repo: repo, redis: redis, embedder: embedder, ledger: ledger, cfg: cfg, metrics: metrics}
}

// Store computes an embedding, writes the row to C6, upserts ITM refs on
// C5 for itm-tier memories, and records a memory_storage ledger entry.
func (e *Engine) Store(ctx context.Context, userID, tier string, req StoreRequest) (*Memory, error) {
	now := time.Now().UTC()
	metadataJSON, _ := json.Marshal(map[string]any{"type": req.Type})
	dim := 0
	vector := e.embedder.Embed(ctx, req.InputContext+" "+req.OutputResponse)
	if vector != nil {
		dim = len(vector)
	}
	size := usage.EstimateMemorySize(req.InputContext, req.OutputResponse, req.Tags, metadataJSON, dim)

	if req.Tier == core.TierITM || req.Tier == core.TierLTM {
		ok, msg, err := e.ledger.CheckQuota(ctx, userID, tier, core.ResourceMemoryStorage, size)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, core.NewKindError(ErrQuotaExceeded, core.KindQuotaExceeded, map[string]any{"message": msg})
		}
	}

	id, err := core.NewID()
	if err != nil {
		return nil, core.NewKindError(err, core.KindTransientInternal, nil)
	}
	m := &Memory{
		ID:                id.String(),
		UserID:            userID,
		SessionID:         req.SessionID,
		Type:              req.Type,
		InputContext:      req.InputContext,
		OutputResponse:    req.OutputResponse,
		Outcome:           req.Outcome,
		EmotionalWeight:   req.EmotionalWeight,
		ConfidenceScore:   req.ConfidenceScore,
		ConstitutionValid: true,
		Tags:              req.Tags,
		VectorEmbedding:   vector,
		Tier:              req.Tier,
		AccessCount:       0,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         expiryForTier(req.Tier, now, e.cfg),
	}
	if err := e.repo.Insert(ctx, m); err != nil {
		return nil, core.NewKindError(err, core.KindTransientInternal, nil)
	}
	if m.Tier == core.TierITM && e.redis != nil {
		if err := e.redis.StoreITM(ctx, userID, m.ID, 1); err != nil {
			logger.FromContext(ctx).Warn("memory engine: itm upsert failed", "error", err)
		}
	}
	if err := e.ledger.Record(ctx, userID, core.ResourceMemoryStorage, size, map[string]any{"operation": "create", "memory_id": m.ID}); err != nil {
		logger.FromContext(ctx).Warn("memory engine: usage record failed", "error", err)
	}
	e.metrics.IncStorage(ctx, string(m.Tier))
	return m, nil
}

// Get reads a memory by id, bumping its ITM access score on C5 when the
// row is itm-tier.
func (e *Engine) Get(ctx context.Context, userID, id string) (*Memory, error) {
	m, err := e.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if m.Tier == core.TierITM && e.redis != nil {
		if err := e.redis.IncrementITMAccess(ctx, userID, id); err != nil {
			logger.FromContext(ctx).Warn("memory engine: itm access increment failed", "error", err)
		}
	}
	e.metrics.IncRetrieval(ctx, string(m.Tier))
	return m, nil
}

// List returns a page of a user's live memories.
func (e *Engine) List(ctx context.Context, userID string, tier *core.MemoryTier, limit, offset int) ([]Memory, error) {
	return e.repo.List(ctx, userID, tier, limit, offset)
}

// Search embeds query and ranks live memories by cosine similarity.
func (e *Engine) Search(
	ctx context.Context,
	userID, query string,
	limit int,
	tier *core.MemoryTier,
	minConfidence *float64,
) ([]SearchHit, error) {
	start := time.Now()
	vector := e.embedder.Embed(ctx, query)
	if vector == nil {
		return nil, nil
	}
	hits, err := e.repo.VectorSearch(ctx, userID, vector, limit, tier, minConfidence)
	if err != nil {
		return nil, core.NewKindError(err, core.KindTransientInternal, nil)
	}
	label := "all"
	if tier != nil {
		label = string(*tier)
	}
	e.metrics.IncSearch(ctx, label)
	e.metrics.ObserveVectorSearchLatency(ctx, time.Since(start).Seconds())
	return hits, nil
}

// Update applies a partial patch to a memory.
func (e *Engine) Update(ctx context.Context, userID, id string, patch UpdatePatch) (*Memory, error) {
	return e.repo.Update(ctx, userID, id, patch)
}

// Delete soft-deletes a memory, removes it from ITM, and records a
// negative storage ledger entry so running totals stay accurate.
func (e *Engine) Delete(ctx context.Context, userID, id string) error {
	m, err := e.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := e.repo.SoftDelete(ctx, userID, id); err != nil {
		return err
	}
	if e.redis != nil {
		if err := e.redis.RemoveFromITM(ctx, userID, id); err != nil {
			logger.FromContext(ctx).Warn("memory engine: itm removal failed", "error", err)
		}
	}
	metadataJSON, _ := json.Marshal(map[string]any{"type": m.Type})
	dim := len(m.VectorEmbedding)
	size := usage.EstimateMemorySize(m.InputContext, m.OutputResponse, m.Tags, metadataJSON, dim)
	if err := e.ledger.Record(ctx, userID, core.ResourceMemoryStorage, -size, map[string]any{"operation": "delete", "memory_id": id}); err != nil {
		logger.FromContext(ctx).Warn("memory engine: usage record failed", "error", err)
	}
	return nil
}

// Promote moves a memory to targetTier, updating its expiry and ITM
// presence to match.
func (e *Engine) Promote(ctx context.Context, userID, id string, targetTier core.MemoryTier) error {
	m, err := e.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	fromTier := m.Tier
	expiresAt := expiryForTier(targetTier, time.Now().UTC(), e.cfg)
	if err := e.repo.Promote(ctx, userID, id, targetTier, expiresAt); err != nil {
		return err
	}
	if e.redis != nil {
		switch targetTier {
		case core.TierITM:
			if err := e.redis.StoreITM(ctx, userID, id, m.AccessCount); err != nil {
				logger.FromContext(ctx).Warn("memory engine: itm upsert on promote failed", "error", err)
			}
		case core.TierLTM:
			if err := e.redis.RemoveFromITM(ctx, userID, id); err != nil {
				logger.FromContext(ctx).Warn("memory engine: itm removal on promote failed", "error", err)
			}
		}
	}
	e.metrics.IncPromotion(ctx, string(fromTier), string(targetTier))
	return nil
}

// Stats reports per-tier counts and byte usage for userID.
func (e *Engine) Stats(ctx context.Context, userID string) (Stats, error) {
	return e.repo.Stats(ctx, userID)
}

// AppendInteraction appends one turn to the session's STM ring buffer on
// C5. It is a no-op (not an error) when no Redis store is configured,
// since STM is a performance tier rather than the system of record.
func (e *Engine) AppendInteraction(ctx context.Context, sessionID, input, output string) error {
	if e.redis == nil {
		return nil
	}
	return e.redis.StoreSTM(ctx, sessionID, store.Interaction{
		Input:     input,
		Output:    output,
		Timestamp: time.Now().UTC(),
	})
}

// BuildContext assembles the prompt-ready STM/ITM/LTM bundle for a turn.
func (e *Engine) BuildContext(ctx context.Context, userID, sessionID string) (ContextBundle, error) {
	var bundle ContextBundle
	if sessionID != "" && e.redis != nil {
		stm, err := e.redis.GetSTM(ctx, sessionID, 5)
		if err != nil {
			logger.FromContext(ctx).Warn("memory engine: stm fetch failed", "error", err)
		}
		for _, i := range stm {
			bundle.STM = append(bundle.STM, STMInteraction{Input: i.Input, Output: i.Output, Timestamp: i.Timestamp})
		}
	}
	if e.redis != nil {
		refs, err := e.redis.GetITM(ctx, userID, 2)
		if err != nil {
			logger.FromContext(ctx).Warn("memory engine: itm fetch failed", "error", err)
		}
		for _, ref := range refs {
			m, err := e.repo.Get(ctx, userID, ref.MemoryID)
			if err != nil {
				continue
			}
			bundle.ITM = append(bundle.ITM, truncated(*m))
		}
	}
	minConfidence := 0.7
	ltmTier := core.TierLTM
	ltm, err := e.repo.List(ctx, userID, &ltmTier, 50, 0)
	if err != nil {
		return bundle, core.NewKindError(err, core.KindTransientInternal, nil)
	}
	count := 0
	for _, m := range ltm {
		if m.ConfidenceScore <= minConfidence {
			continue
		}
		bundle.LTM = append(bundle.LTM, truncated(m))
		count++
		if count >= 5 {
			break
		}
	}
	return bundle, nil
}

func truncated(m Memory) Memory {
	m.InputContext = truncateText(m.InputContext, promptTruncateLen)
	m.OutputResponse = truncateText(m.OutputResponse, promptTruncateLen)
	return m
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func expiryForTier(tier core.MemoryTier, now time.Time, cfg *config.Config) *time.Time {
	switch tier {
	case core.TierSTM:
		t := now.Add(cfg.Memory.STMTTL)
		return &t
	case core.TierITM:
		t := now.Add(cfg.Memory.ITMTTL)
		return &t
	default:
		return nil
	}
}
