package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/learnloop/cortex/pkg/config"
	"github.com/learnloop/cortex/pkg/logger"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cortex",
		Short: "Cognitive-AI backend: chat surface, reflection worker, nightly distillation",
	}
	root.AddCommand(
		serveCmd(),
		workerCmd(),
		distillCmd(),
		migrateCmd(),
	)
	return root
}

// loadContext loads the layered Config and attaches a logger, the pair
// every subcommand needs before it does anything else.
func loadContext(ctx context.Context) (context.Context, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, nil, err
	}
	level := logger.InfoLevel
	if cfg.Logging.Level == "debug" {
		level = logger.DebugLevel
	}
	log := logger.NewLogger(&logger.Config{Level: level, JSON: cfg.Logging.JSON})
	ctx = logger.ContextWithLogger(ctx, log)
	return ctx, cfg, nil
}
