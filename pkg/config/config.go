// Package config loads the process-wide Config from defaults, an optional
// .env file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CORTEX_"

// TierLimits carries the daily/byte quota for one subscription tier.
// A value of -1 means unlimited.
type TierLimits struct {
	LLMTokensPerDay int64 `koanf:"llm_tokens_per_day"`
	MessagesPerDay  int64 `koanf:"messages_per_day"`
	StorageBytes    int64 `koanf:"storage_bytes"`
}

// LocalProviderConfig describes the self-hosted Ollama backend.
type LocalProviderConfig struct {
	Model     string        `koanf:"model"`
	ServerURL string        `koanf:"server_url"`
	Enabled   bool          `koanf:"enabled"`
	Timeout   time.Duration `koanf:"timeout"`
}

// HostedProviderConfig describes the OpenAI-compatible hosted backend.
type HostedProviderConfig struct {
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Enabled bool          `koanf:"enabled"`
	Timeout time.Duration `koanf:"timeout"`
}

// OrchestratorConfig controls the LLM Provider Orchestrator (C4).
type OrchestratorConfig struct {
	ProviderPriority []string             `koanf:"provider_priority"`
	Local            LocalProviderConfig  `koanf:"local"`
	Hosted           HostedProviderConfig `koanf:"hosted"`
	CooldownSeconds  int                  `koanf:"cooldown_seconds"`
	RetryLimit       int                  `koanf:"retry_limit"`
}

// MemoryConfig controls the tiered memory engine (C5/C6/C8).
type MemoryConfig struct {
	STMMaxSize           int           `koanf:"stm_max_size"`
	STMTTL               time.Duration `koanf:"stm_ttl"`
	ITMMaxSize           int           `koanf:"itm_max_size"`
	ITMTTL               time.Duration `koanf:"itm_ttl"`
	PromotionThreshold   int           `koanf:"promotion_threshold"`
	EmbeddingModel       string        `koanf:"embedding_model"`
	EmbeddingDimension   int           `koanf:"embedding_dimension"`
}

// DistillationConfig controls the nightly Distillation Scheduler (C10).
type DistillationConfig struct {
	ScheduleHour             int     `koanf:"schedule_hour"`
	EmotionalWeightThreshold float64 `koanf:"emotional_weight_threshold"`
	ConfidenceThreshold      float64 `koanf:"confidence_threshold"`
}

// RedisConfig describes the two logical databases used by the Redis Tier Store.
type RedisConfig struct {
	URL   string `koanf:"url"`
	STMDB int    `koanf:"stm_db"`
	ITMDB int    `koanf:"itm_db"`
}

// PostgresConfig describes the relational store connection.
type PostgresConfig struct {
	ConnString string `koanf:"conn_string"`
}

// QueueConfig describes the task-queue transport for reflection events.
type QueueConfig struct {
	URL     string `koanf:"url"`
	Stream  string `koanf:"stream"`
	Subject string `koanf:"subject"`
}

// MonitoringConfig gates metrics emission.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LoggingConfig controls the pkg/logger facade.
type LoggingConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// ChatConfig controls the Chat Coordinator (C11).
type ChatConfig struct {
	MaxInputRunes            int `koanf:"max_input_runes"`
	ExpectedCompletionTokens int `koanf:"expected_completion_tokens"`
}

// Config is the single layered configuration struct for the process.
type Config struct {
	Orchestrator OrchestratorConfig    `koanf:"orchestrator"`
	Memory       MemoryConfig          `koanf:"memory"`
	Distillation DistillationConfig    `koanf:"distillation"`
	Chat         ChatConfig            `koanf:"chat"`
	TierLimits   map[string]TierLimits `koanf:"tier_limits"`
	Redis        RedisConfig           `koanf:"redis"`
	Postgres     PostgresConfig        `koanf:"postgres"`
	Queue        QueueConfig           `koanf:"queue"`
	Monitoring   MonitoringConfig      `koanf:"monitoring"`
	Logging      LoggingConfig         `koanf:"logging"`
}

// Default returns the configuration defaults named in spec.md §6/§4.7.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			ProviderPriority: []string{"local", "hosted"},
			CooldownSeconds:  60,
			RetryLimit:       3,
			Local: LocalProviderConfig{
				Model:     "llama3",
				ServerURL: "http://localhost:11434",
				Enabled:   true,
				Timeout:   120 * time.Second,
			},
			Hosted: HostedProviderConfig{
				Model:   "gpt-4o-mini",
				Enabled: true,
				Timeout: 60 * time.Second,
			},
		},
		Memory: MemoryConfig{
			STMMaxSize:         20,
			STMTTL:             time.Hour,
			ITMMaxSize:         100,
			ITMTTL:             7 * 24 * time.Hour,
			PromotionThreshold: 3,
			EmbeddingModel:     "cortex-embed-v1",
			EmbeddingDimension: 384,
		},
		Distillation: DistillationConfig{
			ScheduleHour:             2,
			EmotionalWeightThreshold: 0.3,
			ConfidenceThreshold:      0.7,
		},
		Chat: ChatConfig{
			MaxInputRunes:            4000,
			ExpectedCompletionTokens: 500,
		},
		TierLimits: map[string]TierLimits{
			"free_trial": {LLMTokensPerDay: 1_000, MessagesPerDay: 100, StorageBytes: 1 << 30},
			"basic":      {LLMTokensPerDay: 50_000, MessagesPerDay: 5_000, StorageBytes: 10 << 30},
			"pro":        {LLMTokensPerDay: -1, MessagesPerDay: -1, StorageBytes: -1},
		},
		Redis: RedisConfig{
			URL:   "redis://localhost:6379",
			STMDB: 0,
			ITMDB: 1,
		},
		Postgres: PostgresConfig{
			ConnString: "postgres://localhost:5432/cortex?sslmode=disable",
		},
		Queue: QueueConfig{
			URL:     "nats://localhost:4222",
			Stream:  "REFLECTIONS",
			Subject: "reflect_on_interaction",
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load builds a Config from defaults, an optional .env file, and CORTEX_
// prefixed environment variable overrides (double-underscore as the nested
// key delimiter, e.g. CORTEX_REDIS__URL).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			key = strings.ToLower(key)
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep inside a component.
func (c *Config) Validate() error {
	if len(c.Orchestrator.ProviderPriority) == 0 {
		return fmt.Errorf("config: orchestrator.provider_priority must not be empty")
	}
	if c.Memory.EmbeddingDimension <= 0 {
		return fmt.Errorf("config: memory.embedding_dimension must be positive")
	}
	if c.Memory.STMMaxSize <= 0 || c.Memory.ITMMaxSize <= 0 {
		return fmt.Errorf("config: memory.stm_max_size and itm_max_size must be positive")
	}
	if c.Distillation.ScheduleHour < 0 || c.Distillation.ScheduleHour > 23 {
		return fmt.Errorf("config: distillation.schedule_hour must be in [0,23]")
	}
	return nil
}

// Limits returns the TierLimits for tier, defaulting to free_trial bounds
// when the tier is unrecognized (fail closed, never unlimited by typo).
func (c *Config) Limits(tier string) TierLimits {
	if l, ok := c.TierLimits[tier]; ok {
		return l
	}
	return c.TierLimits["free_trial"]
}
