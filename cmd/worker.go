package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appraisement/appraisal-engine/internal/cache"
	"github.com/appraisement/appraisal-engine/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the appraisal pipeline worker",
	Long:  "Polls the Temporal task queue and executes appraisal workflows and their activities. All external API calls happen in this process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		activities, err := initActivities(env.Store, env.Cache)
		if err != nil {
			return err
		}

		w := workflow.NewWorker(env.Temporal, cfg, activities)

		g, gctx := errgroup.WithContext(ctx)

		// Sweep expired cache rows in the background while the worker runs.
		g.Go(func() error {
			purgeLoop(gctx, env.Cache)
			return nil
		})
		g.Go(func() error {
			zap.L().Info("worker started",
				zap.String("task_queue", cfg.Temporal.TaskQueue),
				zap.Int("max_concurrent_activities", cfg.Lookup.MaxConcurrent))
			if err := w.Run(interruptCh(gctx)); err != nil {
				return eris.Wrap(err, "worker run")
			}
			return nil
		})

		return g.Wait()
	},
}

// interruptCh closes when the context is cancelled, stopping the worker.
func interruptCh(ctx context.Context) <-chan interface{} {
	ch := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func purgeLoop(ctx context.Context, c *cache.Cache) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Purge(ctx)
			if err != nil {
				zap.L().Warn("cache purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("purged expired cache entries", zap.Int("count", n))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
