package cmd

import (
	"context"
	"fmt"

	"stagehand/internal/app"
	"stagehand/internal/worker"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background task worker",
	Long: `Starts the asynq worker that runs advancement ticks, reaper ticks and
elimination tasks. Pair it with "cron" to enqueue the ticks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if err := appInstance.Config.ValidateQueue(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := runWorker(appInstance); err != nil {
			log.WithError(err).Error("worker exited with error")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// runWorker starts the asynq server and blocks until SIGINT or SIGTERM.
func runWorker(appInstance *app.App) error {
	cfg := appInstance.Config

	srv := asynq.NewServer(
		appInstance.RedisOpt(),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      cfg.Worker.Queues,
			Logger:      log.StandardLogger(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.WithFields(log.Fields{
					"task_type": task.Type(),
					"payload":   string(task.Payload()),
					"retry":     retried,
					"max_retry": maxRetry,
				}).WithError(err).Error("task failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, worker.Deps{
		Advancer:   appInstance.Advancer,
		Reaper:     appInstance.Reaper,
		Eliminator: appInstance.Eliminator,
	})

	log.WithFields(log.Fields{"concurrency": cfg.Worker.Concurrency, "queues": cfg.Worker.Queues}).Info("starting asynq worker")
	// Run blocks until a termination signal and then shuts down gracefully.
	if err := srv.Run(mux); err != nil {
		return fmt.Errorf("asynq server: %w", err)
	}
	log.Info("worker shutdown complete")
	return nil
}
