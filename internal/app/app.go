package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"stagehand/internal/config"
	"stagehand/internal/notify"
	"stagehand/internal/pipeline"
	"stagehand/internal/store"
	"stagehand/internal/store/primary"
	"stagehand/internal/store/sqlite"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// App holds the wired pipeline. Commands get it from the cobra context.
type App struct {
	Config    *config.Config
	Store     store.Store
	JobClient store.JobClient // nil unless the queue is enabled
	Notifier  notify.Notifier
	Clock     clockwork.Clock

	Scheduler  *pipeline.Scheduler
	Advancer   *pipeline.Advancer
	Eliminator *pipeline.Eliminator
	Reaper     *pipeline.Reaper
	Service    *pipeline.Service
}

// Options tune how NewApp wires the pipeline.
type Options struct {
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// UseQueue routes eliminations through asynq instead of running them inline.
	UseQueue bool
}

func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg, Clock: opts.Clock}
	if app.Clock == nil {
		app.Clock = clockwork.NewRealClock()
	}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}
	if opts.UseQueue {
		if err := app.initJobClient(); err != nil {
			app.cleanupPartialInit()
			return nil, err
		}
	}
	if err := app.initNotifier(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initPipeline(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}

	log.WithFields(log.Fields{"driver": cfg.Database.Driver, "queue": opts.UseQueue, "notifier": cfg.Notifier.Provider}).Debug("application initialized")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initStore(ctx context.Context) error {
	switch a.Config.Database.Driver {
	case "", "postgres":
		ps, err := primary.NewPrimaryStore(ctx, a.Config.Database.DSN)
		if err != nil {
			return fmt.Errorf("init primary store: %w", err)
		}
		a.Store = ps
	case "sqlite":
		ss, err := sqlite.NewStore(ctx, a.Config.Database.DSN)
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.Store = ss
	default:
		return fmt.Errorf("unsupported database driver %q", a.Config.Database.Driver)
	}
	return nil
}

func (a *App) initJobClient() error {
	jc, err := store.NewAsynqJobClient(a.RedisOpt())
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	a.JobClient = jc
	return nil
}

func (a *App) initNotifier() error {
	n, err := notify.New(a.Config.Notifier)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	a.Notifier = n
	return nil
}

func (a *App) initPipeline() error {
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	opts := pipeline.Options{
		Location:      loc,
		StartHour:     a.Config.Scheduling.StartHour,
		Parallelism:   a.Config.Elimination.Parallelism,
		NotifyTimeout: a.Config.Notifier.Timeout,
	}

	a.Scheduler = pipeline.NewScheduler(a.Store, a.Clock, opts)
	a.Advancer = pipeline.NewAdvancer(a.Store, a.Notifier, a.Clock, opts)
	a.Eliminator = pipeline.NewEliminator(a.Store, a.Notifier, opts)
	a.Reaper = pipeline.NewReaper(a.Store, a.Scheduler, a.Notifier, a.Clock, opts)

	// A nil *AsynqJobClient inside the interface would not compare equal to nil.
	var enqueuer pipeline.EliminationEnqueuer
	if a.JobClient != nil {
		enqueuer = a.JobClient
	}
	a.Service = pipeline.NewService(a.Store, a.Scheduler, a.Eliminator, a.Notifier, enqueuer, opts)
	return nil
}

// RedisOpt is the asynq connection shared by the client, the worker and the cron scheduler.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// Migrate applies the store's embedded schema.
func (a *App) Migrate(ctx context.Context) error {
	m, ok := a.Store.(store.Migrator)
	if !ok {
		return fmt.Errorf("store %T does not support migrations", a.Store)
	}
	return m.Migrate(ctx)
}

func (a *App) Close() {
	a.cleanupPartialInit()
}

func (a *App) cleanupPartialInit() {
	if a.JobClient != nil {
		if err := a.JobClient.Close(); err != nil {
			log.WithError(err).Warn("error closing job client")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// ConfigureLogging applies the logging section to the standard logrus logger.
func ConfigureLogging(cfg config.LoggingConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid logging.level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Format)
	}
	return nil
}
