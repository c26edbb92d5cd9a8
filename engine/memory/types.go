// Package memory implements the Memory Engine (C8): the orchestration
// layer over the Embedding Service, Redis Tier Store, Relational Memory
// Store and Usage Ledger.
package memory

import (
	"time"

	"github.com/learnloop/cortex/engine/core"
)

// Memory is the core durable entity shared by every tier.
type Memory struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	SessionID         string           `json:"session_id,omitempty"`
	Type              core.MemoryType  `json:"type"`
	InputContext      string           `json:"input_context"`
	OutputResponse    string           `json:"output_response"`
	Outcome           core.Outcome     `json:"outcome"`
	EmotionalWeight   float64          `json:"emotional_weight"`
	ConfidenceScore   float64          `json:"confidence_score"`
	ConstitutionValid bool             `json:"constitution_valid"`
	Tags              []string         `json:"tags"`
	VectorEmbedding   []float32        `json:"vector_embedding,omitempty"`
	Tier              core.MemoryTier  `json:"tier"`
	AccessCount       int64            `json:"access_count"`
	LastAccessedAt    *time.Time       `json:"last_accessed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
}

// IsLive reports whether m would be visible to a read at instant now.
func (m *Memory) IsLive(now time.Time) bool {
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}

// StoreRequest is the input to the Memory Engine's store operation.
type StoreRequest struct {
	SessionID       string
	Type            core.MemoryType
	InputContext    string
	OutputResponse  string
	Outcome         core.Outcome
	EmotionalWeight float64
	ConfidenceScore float64
	Tags            []string
	Tier            core.MemoryTier
}

// UpdatePatch is a partial update to a Memory row. Nil fields are left
// unchanged.
type UpdatePatch struct {
	Outcome         *core.Outcome
	EmotionalWeight *float64
	ConfidenceScore *float64
	Tags            []string
	Tier            *core.MemoryTier
}

// ContextBundle is the result of build_context: the prompt-ready slices
// of STM/ITM/LTM for a user turn.
type ContextBundle struct {
	STM []STMInteraction `json:"stm"`
	ITM []Memory         `json:"itm"`
	LTM []Memory         `json:"ltm"`
}

// STMInteraction is one entry of the per-session short-term ring buffer.
type STMInteraction struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
	Tokens    *int      `json:"tokens,omitempty"`
}

// ITMEntry is one member of the per-user ITM sorted set.
type ITMEntry struct {
	MemoryID    string
	AccessCount int64
}

// SearchHit pairs a Memory with its similarity score from vector_search.
type SearchHit struct {
	Memory     Memory
	Similarity float64
}

// Stats summarizes per-tier counts and byte usage for a user.
type Stats struct {
	CountByTier map[core.MemoryTier]int64
	TotalBytes  int64
}
