package memory

import (
	"context"
	"time"

	"github.com/learnloop/cortex/engine/core"
)

// Repository is the Relational Memory Store (C6) contract. Every method
// takes user_id and MUST filter by it: a row belonging to another user is
// indistinguishable from a missing row.
type Repository interface {
	Insert(ctx context.Context, m *Memory) error
	Get(ctx context.Context, userID, id string) (*Memory, error)
	List(ctx context.Context, userID string, tier *core.MemoryTier, limit, offset int) ([]Memory, error)
	VectorSearch(
		ctx context.Context,
		userID string,
		query []float32,
		limit int,
		tier *core.MemoryTier,
		minConfidence *float64,
	) ([]SearchHit, error)
	Update(ctx context.Context, userID, id string, patch UpdatePatch) (*Memory, error)
	SoftDelete(ctx context.Context, userID, id string) error
	Promote(ctx context.Context, userID, id string, targetTier core.MemoryTier, expiresAt *time.Time) error
	Stats(ctx context.Context, userID string) (Stats, error)
	RecentReflections(ctx context.Context, sinceHours int) ([]Memory, error)
	PromoteITMToLTM(ctx context.Context, accessThreshold int64) (int64, error)
	ExpireStale(ctx context.Context) (int64, error)
}
