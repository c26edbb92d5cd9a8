package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/learnloop/cortex/engine/reflection"
	"github.com/learnloop/cortex/pkg/logger"
)

const reflectionConsumerName = "reflection_worker"

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the reflection worker and nightly distillation scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cfg, err := loadContext(ctx)
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if err := a.distillationSched.Start(ctx); err != nil {
				return err
			}
			defer a.distillationSched.Stop()

			log := logger.FromContext(ctx)
			log.Info("worker: consuming reflection queue")
			err = a.reflectQueue.Consume(ctx, reflectionConsumerName, handleReflectionTask(a.reflectionWorker))
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func handleReflectionTask(worker *reflection.Worker) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var task reflection.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			logger.FromContext(ctx).Error("worker: malformed reflection task, dropping", "error", err)
			return nil
		}
		return worker.Process(ctx, task)
	}
}
