package main

import (
	"context"
	"fmt"
	"time"

	rds "github.com/redis/go-redis/v9"

	"github.com/learnloop/cortex/engine/chat"
	"github.com/learnloop/cortex/engine/distillation"
	"github.com/learnloop/cortex/engine/embeddings"
	"github.com/learnloop/cortex/engine/infra/monitoring"
	"github.com/learnloop/cortex/engine/infra/nats"
	"github.com/learnloop/cortex/engine/infra/postgres"
	"github.com/learnloop/cortex/engine/llm/orchestrator"
	"github.com/learnloop/cortex/engine/llm/provider"
	"github.com/learnloop/cortex/engine/memory"
	memstore "github.com/learnloop/cortex/engine/memory/store"
	"github.com/learnloop/cortex/engine/policy"
	"github.com/learnloop/cortex/engine/reflection"
	"github.com/learnloop/cortex/engine/tokens"
	"github.com/learnloop/cortex/engine/usage"
	"github.com/learnloop/cortex/pkg/config"
)

// app bundles every component the cortex binary's subcommands wire
// together, built once from the layered Config and torn down in reverse
// order on shutdown.
type app struct {
	cfg *config.Config

	db         *postgres.Store
	natsServer *nats.Server
	monitor    *monitoring.Service

	reflectQueue *nats.Queue
	validator    *policy.Validator
	counter      *tokens.Counter
	embedder     *embeddings.Service
	redisStore   *memstore.RedisStore
	ledger       *usage.Ledger
	memoryEngine *memory.Engine
	orch         *orchestrator.Orchestrator

	reflectionWorker  *reflection.Worker
	distiller         *distillation.Distiller
	distillationSched *distillation.Scheduler
	distillLock       *postgres.DistillLock
	coordinator       *chat.Coordinator
}

// buildApp wires every component from cfg. Callers must call app.Close
// when done.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	db, err := postgres.NewStore(ctx, &postgres.Config{ConnString: cfg.Postgres.ConnString})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.db = db

	monitor, err := monitoring.New(ctx, &monitoring.Config{Enabled: cfg.Monitoring.Enabled, Path: cfg.Monitoring.Path})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init monitoring: %w", err)
	}
	a.monitor = monitor

	natsServer, err := nats.NewServer(nats.DefaultServerOptions())
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("start embedded nats: %w", err)
	}
	a.natsServer = natsServer

	queue, err := nats.NewQueue(ctx, natsServer.Conn, cfg.Queue.Stream, cfg.Queue.Subject, 7*24*time.Hour)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init reflection queue: %w", err)
	}
	a.reflectQueue = queue

	stmClient, itmClient, err := buildRedisClients(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redisStore = memstore.New(stmClient, itmClient, memstore.Config{
		STMMaxSize: cfg.Memory.STMMaxSize,
		STMTTL:     cfg.Memory.STMTTL,
		ITMMaxSize: cfg.Memory.ITMMaxSize,
		ITMTTL:     cfg.Memory.ITMTTL,
	})

	counter, err := tokens.NewCounter(cfg.Orchestrator.Hosted.Model)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init token counter: %w", err)
	}
	a.counter = counter

	embedder, err := embeddings.New(embeddings.Config{Dimension: cfg.Memory.EmbeddingDimension}, counter)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init embedding service: %w", err)
	}
	a.embedder = embedder

	usageRepo := postgres.NewUsageLedgerRepo(db)
	a.ledger = usage.New(usageRepo, cfg)

	policyRepo := postgres.NewPolicyRepo(db)
	a.validator = policy.New(nil, policyRepo)

	memoryRepo := postgres.NewMemoryRepo(db)
	a.memoryEngine = memory.New(memoryRepo, a.redisStore, embedder, a.ledger, cfg, monitor.Memory)

	providers := buildProviders(cfg)
	a.orch = orchestrator.New(providers, orchestrator.Config{
		RetryLimit:      cfg.Orchestrator.RetryLimit,
		CooldownSeconds: cfg.Orchestrator.CooldownSeconds,
	}, monitor.Provider)

	a.reflectionWorker = reflection.New(a.validator, a.memoryEngine, monitor.Policy)

	distilledRepo := postgres.NewDistilledRepo(db)
	a.distiller = distillation.New(memoryRepo, distilledRepo, cfg, monitor.Distillation)
	a.distillLock = postgres.NewDistillLock(db)
	a.distillationSched = distillation.NewScheduler(a.distiller, cfg.Distillation.ScheduleHour, a.distillLock)

	a.coordinator = chat.New(a.orch, a.memoryEngine, counter, a.ledger, queue, cfg, monitor.Chat)

	return a, nil
}

// buildProviders constructs the priority-ordered provider list the
// orchestrator routes across, in the order named by
// cfg.Orchestrator.ProviderPriority.
func buildProviders(cfg *config.Config) []provider.Provider {
	byName := map[string]provider.Provider{
		"local": provider.NewLocal(provider.LocalConfig{
			Model:     cfg.Orchestrator.Local.Model,
			ServerURL: cfg.Orchestrator.Local.ServerURL,
			Enabled:   cfg.Orchestrator.Local.Enabled,
			Timeout:   cfg.Orchestrator.Local.Timeout,
			Streaming: true,
		}),
		"hosted": provider.NewHosted(provider.HostedConfig{
			Model:     cfg.Orchestrator.Hosted.Model,
			APIKey:    cfg.Orchestrator.Hosted.APIKey,
			BaseURL:   cfg.Orchestrator.Hosted.BaseURL,
			Enabled:   cfg.Orchestrator.Hosted.Enabled,
			Timeout:   cfg.Orchestrator.Hosted.Timeout,
			Streaming: true,
		}),
	}
	providers := make([]provider.Provider, 0, len(cfg.Orchestrator.ProviderPriority))
	for _, name := range cfg.Orchestrator.ProviderPriority {
		if p, ok := byName[name]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}

// buildRedisClients opens the two logical-database clients the Redis Tier
// Store needs: DB cfg.Redis.STMDB for STM, DB cfg.Redis.ITMDB for ITM.
func buildRedisClients(cfg *config.Config) (stm, itm *rds.Client, err error) {
	stmOpt, err := rds.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	itmOpt, err := rds.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	stmOpt.DB = cfg.Redis.STMDB
	itmOpt.DB = cfg.Redis.ITMDB
	return rds.NewClient(stmOpt), rds.NewClient(itmOpt), nil
}

// Close tears down every component that owns a live connection, best
// effort, logging nothing fatal since this runs on both the happy and the
// partial-init-failure path.
func (a *app) Close(ctx context.Context) {
	if a.monitor != nil {
		_ = a.monitor.Shutdown(ctx)
	}
	if a.natsServer != nil {
		_ = a.natsServer.Shutdown()
	}
	if a.db != nil {
		_ = a.db.Close(ctx)
	}
}
