package core

// ComponentType labels which subsystem an operation or usage event
// originated from, for metrics and usage-ledger attribution.
type ComponentType string

const (
	ComponentPolicy       ComponentType = "policy"
	ComponentEmbedding    ComponentType = "embedding"
	ComponentTokenCounter ComponentType = "token_counter"
	ComponentOrchestrator ComponentType = "orchestrator"
	ComponentRedisStore   ComponentType = "redis_store"
	ComponentMemoryStore  ComponentType = "memory_store"
	ComponentUsageLedger  ComponentType = "usage_ledger"
	ComponentMemoryEngine ComponentType = "memory_engine"
	ComponentReflection   ComponentType = "reflection_worker"
	ComponentDistillation ComponentType = "distillation_scheduler"
	ComponentChat         ComponentType = "chat_coordinator"
)

// MemoryType is the closed set of Memory.type values.
type MemoryType string

const (
	MemoryTypeLesson       MemoryType = "lesson"
	MemoryTypeTask         MemoryType = "task"
	MemoryTypeConversation MemoryType = "conversation"
	MemoryTypeError        MemoryType = "error"
	MemoryTypeReflection   MemoryType = "reflection"
	MemoryTypeAchievement  MemoryType = "achievement"
)

// Outcome is the closed set of Memory.outcome values.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeNeutral Outcome = "neutral"
)

// MemoryTier is the closed set of Memory.tier values.
type MemoryTier string

const (
	TierSTM MemoryTier = "stm"
	TierITM MemoryTier = "itm"
	TierLTM MemoryTier = "ltm"
)

// ResourceType is the closed set of UsageLedgerEntry.resource_type values.
type ResourceType string

const (
	ResourceLLMTokens     ResourceType = "llm_tokens"
	ResourceMessages      ResourceType = "messages"
	ResourceMemoryStorage ResourceType = "memory_storage"
)

// SubscriptionTier is the closed set of billing tiers that gate usage quotas.
type SubscriptionTier string

const (
	TierFreeTrial SubscriptionTier = "free_trial"
	TierBasic     SubscriptionTier = "basic"
	TierPro       SubscriptionTier = "pro"
)
