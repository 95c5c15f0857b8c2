package cmd

import (
	"os/signal"
	"syscall"

	"stagehand/internal/pipeline"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the advancement and reaper pollers in process",
	Long: `Runs both pollers on the configured intervals without Redis. Each poller
ticks once at startup. Use "worker" and "cron" instead when running several
replicas.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runners := []*pipeline.Runner{
			pipeline.NewRunner("advance", cfg.Scheduling.AdvanceInterval, appInstance.Clock, pipeline.AdvanceTick(appInstance.Advancer)),
			pipeline.NewRunner("reap", cfg.Scheduling.ReapInterval, appInstance.Clock, pipeline.ReapTick(appInstance.Reaper)),
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, r := range runners {
			r := r
			g.Go(func() error {
				r.Run(gctx)
				return nil
			})
		}
		log.Info("daemon running, press Ctrl+C to stop")
		err = g.Wait()
		log.Info("daemon stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
