package cmd

import (
	"context"
	"fmt"
	"os"

	"stagehand/internal/app"
	"stagehand/internal/config"
	"stagehand/internal/notify"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	useQueue bool

	// activeApp is closed by Execute once the command returns.
	activeApp *app.App
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Hiring pipeline scheduler",
	Long: `stagehand schedules multi-stage hiring pipelines, opens rounds as their dates
arrive, shortlists candidates after the submission deadline and eliminates
candidates who fall below a round's threshold.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := app.ConfigureLogging(cfg.Logging); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if useQueue {
			if err := cfg.ValidateQueue(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
		}

		appInstance, err := app.NewApp(cmd.Context(), cfg, app.Options{UseQueue: useQueue})
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		activeApp = appInstance

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	closeActiveApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func closeActiveApp() {
	if activeApp != nil {
		activeApp.Close()
		activeApp = nil
	}
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const appKey contextKey = "app"

// GetAppFromContext retrieves the app instance stored by PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&useQueue, "queue", false, "Hand eliminations to the asynq worker instead of running them inline")

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(migrateCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database connectivity and notifier state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Checking %s database connectivity...\n", appInstance.Config.Database.Driver)
		if err := appInstance.Store.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database connection successful.")

		provider := appInstance.Config.Notifier.Provider
		if provider == "" {
			provider = "log"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notifier: %s (%s)\n", provider, notify.Status(appInstance.Notifier))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := appInstance.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema applied.")
		return nil
	},
}
