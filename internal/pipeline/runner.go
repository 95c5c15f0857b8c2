package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// TickFunc is one poller pass.
type TickFunc func(ctx context.Context) error

// Runner calls a TickFunc once immediately and then on every interval of the
// injected clock until the context ends.
type Runner struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	tick     TickFunc
}

func NewRunner(name string, interval time.Duration, clock clockwork.Clock, tick TickFunc) *Runner {
	return &Runner{name: name, interval: interval, clock: clock, tick: tick}
}

// AdvanceTick adapts the advancer to a TickFunc.
func AdvanceTick(a *Advancer) TickFunc {
	return func(ctx context.Context) error {
		_, err := a.Tick(ctx)
		return err
	}
}

// ReapTick adapts the reaper to a TickFunc.
func ReapTick(r *Reaper) TickFunc {
	return func(ctx context.Context) error {
		_, err := r.Tick(ctx)
		return err
	}
}

// Run blocks until ctx is cancelled. A failed tick is logged and retried on the
// next interval.
func (r *Runner) Run(ctx context.Context) {
	logger := log.WithFields(log.Fields{"poller": r.name, "interval": r.interval.String()})
	logger.Info("poller started")

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.runOnce(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("poller stopped")
			return
		case <-ticker.Chan():
			r.runOnce(ctx, logger)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, logger *log.Entry) {
	if ctx.Err() != nil {
		return
	}
	if err := r.tick(ctx); err != nil {
		logger.WithError(err).Error("poller tick failed")
	}
}
