package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/memory"
)

var memoryColumns = []string{
	"id", "user_id", "session_id", "type", "input_context", "output_response",
	"outcome", "emotional_weight", "confidence_score", "constitution_valid",
	"tags", "vector_embedding", "tier", "access_count", "last_accessed_at",
	"created_at", "updated_at", "expires_at",
}

// MemoryRepo is the Postgres-backed memory.Repository (C6).
type MemoryRepo struct {
	db *Store
}

// NewMemoryRepo builds a MemoryRepo.
func NewMemoryRepo(db *Store) *MemoryRepo {
	return &MemoryRepo{db: db}
}

var _ memory.Repository = (*MemoryRepo)(nil)

func scanMemoryRow(row pgx.Row) (*memory.Memory, error) {
	var m memory.Memory
	var sessionID *string
	var tags []string
	var vector []float32
	var lastAccessed, expiresAt *time.Time
	err := row.Scan(
		&m.ID, &m.UserID, &sessionID, &m.Type, &m.InputContext, &m.OutputResponse,
		&m.Outcome, &m.EmotionalWeight, &m.ConfidenceScore, &m.ConstitutionValid,
		&tags, &vector, &m.Tier, &m.AccessCount, &lastAccessed,
		&m.CreatedAt, &m.UpdatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		m.SessionID = *sessionID
	}
	m.Tags = tags
	m.VectorEmbedding = vector
	m.LastAccessedAt = lastAccessed
	m.ExpiresAt = expiresAt
	return &m, nil
}

// Insert writes a new memory row. The vector column is omitted from the
// statement entirely (not set to NULL) when the embedding could not be
// computed, matching the degraded-but-valid write spec.md §7 allows.
func (r *MemoryRepo) Insert(ctx context.Context, m *memory.Memory) error {
	cols := []string{
		"id", "user_id", "session_id", "type", "input_context", "output_response",
		"outcome", "emotional_weight", "confidence_score", "constitution_valid",
		"tags", "tier", "access_count", "created_at", "updated_at", "expires_at",
	}
	vals := []any{
		m.ID, m.UserID, nullableString(m.SessionID), m.Type, m.InputContext, m.OutputResponse,
		m.Outcome, m.EmotionalWeight, m.ConfidenceScore, m.ConstitutionValid,
		m.Tags, m.Tier, m.AccessCount, m.CreatedAt, m.UpdatedAt, m.ExpiresAt,
	}
	if m.VectorEmbedding != nil {
		cols = append(cols, "vector_embedding")
		vals = append(vals, m.VectorEmbedding)
	}
	sqlStr, args, err := usageBuilder.Insert("memories").Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return fmt.Errorf("memory repo: build insert: %w", err)
	}
	if _, err := r.db.Pool().Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("memory repo: insert: %w", err)
	}
	return nil
}

// Get returns the row iff it is live and owned by userID, atomically
// incrementing access_count and refreshing last_accessed_at on a hit.
func (r *MemoryRepo) Get(ctx context.Context, userID, id string) (*memory.Memory, error) {
	sqlStr, args, err := usageBuilder.
		Update("memories").
		Set("access_count", sq.Expr("access_count + 1")).
		Set("last_accessed_at", time.Now().UTC()).
		Where(sq.Eq{"user_id": userID, "id": id}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now().UTC()}}).
		Suffix("RETURNING " + columnList(memoryColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("memory repo: build get: %w", err)
	}
	row := r.db.Pool().QueryRow(ctx, sqlStr, args...)
	m, err := scanMemoryRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, core.NewKindError(err, core.KindNotFound, map[string]any{"id": id})
		}
		return nil, fmt.Errorf("memory repo: get: %w", err)
	}
	return m, nil
}

// List returns live rows for userID, newest first.
func (r *MemoryRepo) List(ctx context.Context, userID string, tier *core.MemoryTier, limit, offset int) ([]memory.Memory, error) {
	q := usageBuilder.
		Select(memoryColumns...).
		From("memories").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now().UTC()}}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if tier != nil {
		q = q.Where(sq.Eq{"tier": *tier})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("memory repo: build list: %w", err)
	}
	rows, err := r.db.Pool().Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("memory repo: list: %w", err)
	}
	defer rows.Close()
	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("memory repo: scan list row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// VectorSearch shortlists live, non-null-vector rows for userID (optionally
// filtered by tier/min confidence) and reranks them by cosine similarity
// in-process, per the pgvector-optional design note.
func (r *MemoryRepo) VectorSearch(
	ctx context.Context,
	userID string,
	query []float32,
	limit int,
	tier *core.MemoryTier,
	minConfidence *float64,
) ([]memory.SearchHit, error) {
	const shortlistSize = 500
	q := usageBuilder.
		Select(memoryColumns...).
		From("memories").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now().UTC()}}).
		Where(sq.NotEq{"vector_embedding": nil}).
		OrderBy("created_at DESC").
		Limit(shortlistSize)
	if tier != nil {
		q = q.Where(sq.Eq{"tier": *tier})
	}
	if minConfidence != nil {
		q = q.Where(sq.GtOrEq{"confidence_score": *minConfidence})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("memory repo: build vector search: %w", err)
	}
	rows, err := r.db.Pool().Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("memory repo: vector search: %w", err)
	}
	defer rows.Close()
	var hits []memory.SearchHit
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("memory repo: scan vector search row: %w", err)
		}
		if m.VectorEmbedding == nil {
			continue
		}
		hits = append(hits, memory.SearchHit{Memory: *m, Similarity: cosineSimilarity01(query, m.VectorEmbedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortHitsBySimilarityDesc(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosineSimilarity01(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (cos + 1) / 2
}

func sortHitsBySimilarityDesc(hits []memory.SearchHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// Update applies a partial patch and refreshes updated_at.
func (r *MemoryRepo) Update(ctx context.Context, userID, id string, patch memory.UpdatePatch) (*memory.Memory, error) {
	q := usageBuilder.Update("memories").Set("updated_at", time.Now().UTC())
	if patch.Outcome != nil {
		q = q.Set("outcome", *patch.Outcome)
	}
	if patch.EmotionalWeight != nil {
		q = q.Set("emotional_weight", *patch.EmotionalWeight)
	}
	if patch.ConfidenceScore != nil {
		q = q.Set("confidence_score", *patch.ConfidenceScore)
	}
	if patch.Tags != nil {
		q = q.Set("tags", patch.Tags)
	}
	if patch.Tier != nil {
		q = q.Set("tier", *patch.Tier)
	}
	sqlStr, args, err := q.
		Where(sq.Eq{"user_id": userID, "id": id}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now().UTC()}}).
		Suffix("RETURNING " + columnList(memoryColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("memory repo: build update: %w", err)
	}
	row := r.db.Pool().QueryRow(ctx, sqlStr, args...)
	m, err := scanMemoryRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, core.NewKindError(err, core.KindNotFound, map[string]any{"id": id})
		}
		return nil, fmt.Errorf("memory repo: update: %w", err)
	}
	return m, nil
}

// SoftDelete sets expires_at = now.
func (r *MemoryRepo) SoftDelete(ctx context.Context, userID, id string) error {
	sqlStr, args, err := usageBuilder.
		Update("memories").
		Set("expires_at", time.Now().UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"user_id": userID, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("memory repo: build soft delete: %w", err)
	}
	tag, err := r.db.Pool().Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("memory repo: soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewKindError(fmt.Errorf("memory not found"), core.KindNotFound, map[string]any{"id": id})
	}
	return nil
}

// Promote sets tier=targetTier and the tier-appropriate expires_at.
func (r *MemoryRepo) Promote(ctx context.Context, userID, id string, targetTier core.MemoryTier, expiresAt *time.Time) error {
	sqlStr, args, err := usageBuilder.
		Update("memories").
		Set("tier", targetTier).
		Set("expires_at", expiresAt).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"user_id": userID, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("memory repo: build promote: %w", err)
	}
	tag, err := r.db.Pool().Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("memory repo: promote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewKindError(fmt.Errorf("memory not found"), core.KindNotFound, map[string]any{"id": id})
	}
	return nil
}

// Stats returns per-tier live counts and a byte estimate for userID.
func (r *MemoryRepo) Stats(ctx context.Context, userID string) (memory.Stats, error) {
	sqlStr, args, err := usageBuilder.
		Select("tier", "COUNT(*)", "COALESCE(SUM(LENGTH(input_context) + LENGTH(output_response)), 0)").
		From("memories").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now().UTC()}}).
		GroupBy("tier").
		ToSql()
	if err != nil {
		return memory.Stats{}, fmt.Errorf("memory repo: build stats: %w", err)
	}
	rows, err := r.db.Pool().Query(ctx, sqlStr, args...)
	if err != nil {
		return memory.Stats{}, fmt.Errorf("memory repo: stats: %w", err)
	}
	defer rows.Close()
	stats := memory.Stats{CountByTier: map[core.MemoryTier]int64{}}
	for rows.Next() {
		var tier core.MemoryTier
		var count, bytes int64
		if err := rows.Scan(&tier, &count, &bytes); err != nil {
			return memory.Stats{}, fmt.Errorf("memory repo: scan stats row: %w", err)
		}
		stats.CountByTier[tier] = count
		stats.TotalBytes += bytes
	}
	return stats, rows.Err()
}

// RecentReflections returns reflection-type memories created within the
// last sinceHours hours, newest first.
func (r *MemoryRepo) RecentReflections(ctx context.Context, sinceHours int) ([]memory.Memory, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(sinceHours) * time.Hour)
	sqlStr, args, err := usageBuilder.
		Select(memoryColumns...).
		From("memories").
		Where(sq.Eq{"type": core.MemoryTypeReflection}).
		Where(sq.GtOrEq{"created_at": cutoff}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("memory repo: build recent reflections: %w", err)
	}
	rows, err := r.db.Pool().Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("memory repo: recent reflections: %w", err)
	}
	defer rows.Close()
	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("memory repo: scan reflection row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// PromoteITMToLTM promotes every ITM memory with access_count >= threshold,
// constitution_valid, and a live (or absent) expiry to LTM.
func (r *MemoryRepo) PromoteITMToLTM(ctx context.Context, accessThreshold int64) (int64, error) {
	sqlStr, args, err := usageBuilder.
		Update("memories").
		Set("tier", core.TierLTM).
		Set("expires_at", nil).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"tier": core.TierITM}).
		Where(sq.GtOrEq{"access_count": accessThreshold}).
		Where(sq.Eq{"constitution_valid": true}).
		Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now().UTC()}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("memory repo: build promote itm: %w", err)
	}
	tag, err := r.db.Pool().Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("memory repo: promote itm: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireStale canonicalizes already-past expiries on non-LTM rows by
// setting expires_at = now.
func (r *MemoryRepo) ExpireStale(ctx context.Context) (int64, error) {
	sqlStr, args, err := usageBuilder.
		Update("memories").
		Set("expires_at", time.Now().UTC()).
		Where(sq.NotEq{"expires_at": nil}).
		Where(sq.Lt{"expires_at": time.Now().UTC()}).
		Where(sq.NotEq{"tier": core.TierLTM}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("memory repo: build expire stale: %w", err)
	}
	tag, err := r.db.Pool().Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("memory repo: expire stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func columnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
