package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/learnloop/cortex/pkg/logger"
)

func distillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distill",
		Short: "Run one distillation pass immediately and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ctx, cfg, err := loadContext(ctx)
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			log := logger.FromContext(ctx)
			acquired, err := a.distillLock.TryLock(ctx)
			if err != nil {
				return err
			}
			if !acquired {
				log.Info("distill: another run is already in progress, exiting")
				return nil
			}
			defer func() {
				if err := a.distillLock.Unlock(ctx); err != nil {
					log.Warn("distill: failed to release lock", "error", err)
				}
			}()

			summary := a.distiller.Run(ctx)
			log.Info("distill: run complete",
				"reflections_processed", summary.ReflectionsProcessed,
				"knowledge_distilled", summary.KnowledgeDistilled,
				"memories_promoted", summary.MemoriesPromoted,
				"memories_expired", summary.MemoriesExpired,
				"errors", len(summary.Errors),
			)
			return nil
		},
	}
}
