// Package usage implements the Usage Ledger (C7): an append-only event
// log of resource consumption with daily rollups and quota checks.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/pkg/config"
)

// Entry is one append-only usage_ledger row.
type Entry struct {
	ID           string
	UserID       string
	ResourceType core.ResourceType
	Amount       int64
	Metadata     map[string]any
	Timestamp    time.Time
}

// DayPoint is one entry of a range_stats series.
type DayPoint struct {
	Date   time.Time
	Amount int64
}

// StorageUsage summarizes a user's current memory storage footprint.
type StorageUsage struct {
	TotalBytes   int64
	CountsByTier map[core.MemoryTier]int64
}

// Repository persists and aggregates usage_ledger rows.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	Today(ctx context.Context, userID string, resource core.ResourceType) (int64, error)
	RangeStats(ctx context.Context, userID string, days int) (map[core.ResourceType][]DayPoint, error)
}

// Ledger is the Usage Ledger (C7) public API.
type Ledger struct {
	repo Repository
	cfg  *config.Config
}

// New builds a Ledger.
func New(repo Repository, cfg *config.Config) *Ledger {
	return &Ledger{repo: repo, cfg: cfg}
}

// Record appends a usage event at now.
func (l *Ledger) Record(ctx context.Context, userID string, resource core.ResourceType, amount int64, metadata map[string]any) error {
	id, err := core.NewID()
	if err != nil {
		return core.NewKindError(err, core.KindTransientInternal, nil)
	}
	entry := &Entry{
		ID:           id.String(),
		UserID:       userID,
		ResourceType: resource,
		Amount:       amount,
		Metadata:     metadata,
		Timestamp:    time.Now().UTC(),
	}
	if err := l.repo.Record(ctx, entry); err != nil {
		return core.NewKindError(err, core.KindTransientInternal, map[string]any{"resource_type": resource})
	}
	return nil
}

// Today sums a resource's entries for the current UTC day.
func (l *Ledger) Today(ctx context.Context, userID string, resource core.ResourceType) (int64, error) {
	return l.repo.Today(ctx, userID, resource)
}

// RangeStats returns daily rollups per resource type over the last days days.
func (l *Ledger) RangeStats(ctx context.Context, userID string, days int) (map[core.ResourceType][]DayPoint, error) {
	return l.repo.RangeStats(ctx, userID, days)
}

// CheckQuota compares today's usage plus requested against the tier limit
// for resource. A limit of -1 is unlimited and short-circuits to ok=true.
func (l *Ledger) CheckQuota(
	ctx context.Context,
	userID string,
	tier string,
	resource core.ResourceType,
	requested int64,
) (bool, string, error) {
	limit := resourceLimit(l.cfg.Limits(tier), resource)
	if limit < 0 {
		return true, "unlimited", nil
	}
	current, err := l.Today(ctx, userID, resource)
	if err != nil {
		return false, "", core.NewKindError(err, core.KindTransientInternal, nil)
	}
	total := current + requested
	if total > limit {
		return false, fmt.Sprintf("%d/%d %s quota exceeded", current, limit, resource), nil
	}
	if float64(total) >= 0.8*float64(limit) {
		return true, fmt.Sprintf("%d/%d %s quota at %.0f%%", total, limit, resource, 100*float64(total)/float64(limit)), nil
	}
	return true, fmt.Sprintf("%d/%d %s", total, limit, resource), nil
}

func resourceLimit(limits config.TierLimits, resource core.ResourceType) int64 {
	switch resource {
	case core.ResourceLLMTokens:
		return limits.LLMTokensPerDay
	case core.ResourceMessages:
		return limits.MessagesPerDay
	case core.ResourceMemoryStorage:
		return limits.StorageBytes
	default:
		return 0
	}
}

// StorageUsage aggregates today's memory_storage ledger sum with current
// memory counts by tier. Counts by tier are supplied by the caller (the
// Memory Engine owns the relational store); this keeps the ledger from
// depending on the memory package.
func (l *Ledger) TotalStorageBytes(ctx context.Context, userID string) (int64, error) {
	// The running total is the lifetime sum of memory_storage entries,
	// not "today's" sum — reuse RangeStats with a wide window and sum.
	stats, err := l.repo.RangeStats(ctx, userID, 36500)
	if err != nil {
		return 0, core.NewKindError(err, core.KindTransientInternal, nil)
	}
	var total int64
	for _, p := range stats[core.ResourceMemoryStorage] {
		total += p.Amount
	}
	return total, nil
}

const fixedRowOverheadBytes = 162

// EstimateMemorySize computes the byte-accurate storage size estimate
// used when recording a memory_storage ledger entry: UTF-8 byte lengths
// of the text fields, per-tag overhead, metadata JSON size, the
// embedding's byte footprint, plus a fixed row overhead.
func EstimateMemorySize(inputContext, outputResponse string, tags []string, metadataJSON []byte, embeddingDim int) int64 {
	size := int64(len(inputContext)) + int64(len(outputResponse))
	for _, tag := range tags {
		size += 4 + int64(len([]byte(tag)))
	}
	size += int64(len(metadataJSON))
	size += int64(embeddingDim) * 4
	size += fixedRowOverheadBytes
	return size
}
