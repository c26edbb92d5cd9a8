// Package distillation implements the Nightly Distillation Worker (C10):
// a scheduled job that turns recent reflections into durable principles,
// promotes well-exercised ITM memories to LTM, and sweeps expired rows.
package distillation

import (
	"context"
	"time"
)

// Knowledge is one distilled_knowledge row: a principle extracted from a
// cluster of reflections sharing a topic.
type Knowledge struct {
	ID                string
	UserID            string
	SourceReflections []string
	Topic             string
	Principle         string
	Confidence        float64
	CreatedAt         time.Time
}

// Repository persists distilled knowledge rows.
type Repository interface {
	Insert(ctx context.Context, k *Knowledge) error
	RecentByUser(ctx context.Context, userID string, limit int) ([]Knowledge, error)
}

// Summary is the outcome of one full distillation run, per spec.md §4.10.
type Summary struct {
	ReflectionsProcessed int
	KnowledgeDistilled   int
	MemoriesPromoted     int64
	MemoriesExpired      int64
	Errors               []string
	StartedAt            time.Time
	FinishedAt           time.Time
}

// reservedTags are excluded when picking a group's topic tag; every
// reflection carries all three, so none of them is informative on its own.
var reservedTags = map[string]bool{
	"reflection":      true,
	"self-assessment": true,
	"alignment":       true,
}

const fallbackTopic = "general"

// topicOf returns the first tag not in reservedTags, or fallbackTopic.
func topicOf(tags []string) string {
	for _, t := range tags {
		if !reservedTags[t] {
			return t
		}
	}
	return fallbackTopic
}
