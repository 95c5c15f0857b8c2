package cmd

import (
	"fmt"
	"time"

	"stagehand/internal/tasks"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Enqueue advancement and reaper ticks on their intervals",
	Long: `Runs the asynq periodic scheduler. Every scheduling.advance_interval it
enqueues an advancement tick and every scheduling.reap_interval a reaper tick;
the worker executes them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config
		if err := cfg.ValidateQueue(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		scheduler := asynq.NewScheduler(appInstance.RedisOpt(), &asynq.SchedulerOpts{
			Location: loc,
			Logger:   log.StandardLogger(),
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil {
					log.WithError(err).Warn("failed to enqueue periodic tick")
					return
				}
				log.WithFields(log.Fields{"task_type": info.Type, "task_id": info.ID}).Debug("periodic tick enqueued")
			},
		})

		entries := []struct {
			task  *asynq.Task
			every time.Duration
		}{
			{tasks.NewAdvanceTickTask(), cfg.Scheduling.AdvanceInterval},
			{tasks.NewReapTickTask(), cfg.Scheduling.ReapInterval},
		}
		for _, e := range entries {
			spec := "@every " + e.every.String()
			// A tick still waiting in the queue makes the next one redundant.
			id, err := scheduler.Register(spec, e.task, asynq.Queue(tasks.QueueDefault), asynq.Unique(e.every))
			if err != nil {
				return fmt.Errorf("register %s: %w", e.task.Type(), err)
			}
			log.WithFields(log.Fields{"task_type": e.task.Type(), "spec": spec, "entry_id": id}).Info("registered periodic tick")
		}

		// Run blocks until a termination signal.
		if err := scheduler.Run(); err != nil {
			return fmt.Errorf("asynq scheduler: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cronCmd)
}
