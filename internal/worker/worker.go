// Package worker holds the asynq handlers that drive the pipeline from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"

	"stagehand/internal/models"
	"stagehand/internal/pipeline"
	"stagehand/internal/tasks"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// Deps are the pipeline components the handlers call.
type Deps struct {
	Advancer   *pipeline.Advancer
	Reaper     *pipeline.Reaper
	Eliminator *pipeline.Eliminator
}

// RegisterHandlers binds every pipeline task type on mux.
func RegisterHandlers(mux *asynq.ServeMux, deps Deps) {
	mux.HandleFunc(tasks.TypeAdvanceTick, HandleAdvanceTick(deps.Advancer))
	mux.HandleFunc(tasks.TypeReapTick, HandleReapTick(deps.Reaper))
	mux.HandleFunc(tasks.TypeEliminate, HandleEliminate(deps.Eliminator))
	log.WithField("types", []string{tasks.TypeAdvanceTick, tasks.TypeReapTick, tasks.TypeEliminate}).Info("registered pipeline task handlers")
}

func HandleAdvanceTick(a *pipeline.Advancer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, _ *asynq.Task) error {
		res, err := a.Tick(ctx)
		if err != nil {
			return fmt.Errorf("advance tick: %w", err)
		}
		log.WithFields(log.Fields{"jobs": res.Jobs, "advanced": res.Advanced, "notified": res.Notified, "failed": res.Failed}).Debug("advance tick done")
		return nil
	}
}

func HandleReapTick(r *pipeline.Reaper) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, _ *asynq.Task) error {
		res, err := r.Tick(ctx)
		if err != nil {
			return fmt.Errorf("reap tick: %w", err)
		}
		log.WithFields(log.Fields{"jobs": res.Jobs, "finalized": res.Finalized, "shortlisted": res.Shortlisted, "rejected": res.Rejected, "failed": res.Failed}).Debug("reap tick done")
		return nil
	}
}

// HandleEliminate runs the elimination engine. Malformed payloads, unknown jobs
// and invalid rounds are not retried.
func HandleEliminate(e *pipeline.Eliminator) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := tasks.ParseEliminatePayload(t)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		count, err := e.Eliminate(ctx, p.JobID, p.RoundNumber)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) {
				return fmt.Errorf("eliminate job %s round %d: %v: %w", p.JobID, p.RoundNumber, err, asynq.SkipRetry)
			}
			return fmt.Errorf("eliminate job %s round %d: %w", p.JobID, p.RoundNumber, err)
		}
		log.WithFields(log.Fields{"job_id": p.JobID, "round": p.RoundNumber, "rejected": count}).Info("elimination task done")
		return nil
	}
}
