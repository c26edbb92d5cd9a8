package main

import (
	"github.com/spf13/cobra"

	"github.com/learnloop/cortex/engine/infra/postgres"
	"github.com/learnloop/cortex/pkg/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ctx, cfg, err := loadContext(ctx)
			if err != nil {
				return err
			}
			if err := postgres.ApplyMigrationsWithLock(ctx, cfg.Postgres.ConnString); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("migrate: schema up to date")
			return nil
		},
	}
}
