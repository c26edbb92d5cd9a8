// Package chat implements the Chat Coordinator (C11): the per-request
// glue between the LLM Provider Orchestrator, Memory Engine, Token
// Counter, Usage Ledger, and Reflection Worker for a single user turn.
package chat

import (
	"github.com/go-playground/validator/v10"

	"github.com/learnloop/cortex/engine/llm/provider"
)

var structValidator = validator.New()

// Request is one incoming user turn. SubscriptionTier may be left empty;
// the Usage Ledger falls back to free_trial limits for an unset tier.
type Request struct {
	UserID           string `validate:"required"`
	SessionID        string `validate:"required"`
	SubscriptionTier string
	Text             string `validate:"required"`
}

// Response is the result of a completed (non-streamed) turn.
type Response struct {
	SessionID        string
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Chunk is one piece of a streamed turn, surfaced to the caller.
type Chunk struct {
	Content string
	Done    bool
}

func toChunk(c provider.StreamChunk) Chunk {
	return Chunk{Content: c.Content, Done: c.Done}
}
