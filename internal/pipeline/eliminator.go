package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"stagehand/internal/models"
	"stagehand/internal/notify"
	"stagehand/internal/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Eliminator rejects candidates who scored below a round's threshold.
type Eliminator struct {
	store    store.Store
	notifier notify.Notifier
	opts     Options
}

func NewEliminator(s store.Store, n notify.Notifier, opts Options) *Eliminator {
	return &Eliminator{store: s, notifier: n, opts: opts.withDefaults()}
}

// Eliminate skips every later round for candidates whose completed score on
// roundNumber is below the stage threshold, completes their records and marks
// their screening rejected. It returns how many candidates fell below the
// threshold; running it again returns the same count without new writes.
func (e *Eliminator) Eliminate(ctx context.Context, jobID uuid.UUID, roundNumber int) (int, error) {
	if roundNumber < 1 {
		return 0, fmt.Errorf("%w: round number must be positive", models.ErrValidation)
	}
	job, err := loadJob(ctx, e.store, jobID)
	if err != nil {
		return 0, err
	}
	threshold := job.ThresholdFor(roundNumber)
	logger := log.WithFields(log.Fields{"job_id": jobID, "round": roundNumber, "threshold": threshold})

	recs, err := e.store.ListProgressByRoundStatus(ctx, jobID, roundNumber, models.RoundStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to list completed rounds: %w", err)
	}

	var below []*models.ProgressRecord
	for _, rec := range recs {
		r, ok := rec.Round(roundNumber)
		if ok && r.Score != nil && *r.Score < threshold {
			below = append(below, rec)
		}
	}

	var rejected, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for _, rec := range below {
		rec := rec
		g.Go(func() error {
			if err := e.reject(gctx, job, rec, roundNumber); err != nil {
				failed.Add(1)
				logger.WithField("candidate_id", rec.CandidateID).WithError(err).Error("failed to eliminate candidate")
				return nil
			}
			rejected.Add(1)
			return nil
		})
	}
	// Per-candidate errors are counted above; none reach the group.
	_ = g.Wait()

	logger.WithFields(log.Fields{"rejected": rejected.Load(), "failed": failed.Load()}).Info("elimination finished")
	if n := failed.Load(); n > 0 {
		return int(rejected.Load()), fmt.Errorf("elimination failed for %d of %d candidates", n, len(below))
	}
	return int(rejected.Load()), nil
}

func (e *Eliminator) reject(ctx context.Context, job *models.Job, rec *models.ProgressRecord, roundNumber int) error {
	changed, err := mutateProgress(ctx, e.store, rec, func(r *models.ProgressRecord) (bool, error) {
		return r.EliminateAfter(roundNumber), nil
	})
	if err != nil {
		return err
	}

	err = e.store.UpdateScreeningStatus(ctx, job.ID, rec.CandidateID, models.ScreeningStatusRejected, nil)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to reject screening: %w", err)
	}

	if changed {
		notify.Deliver(ctx, e.notifier, e.opts.NotifyTimeout, rec.CandidateEmail, notify.KindRejected,
			map[string]any{notify.KeyCandidateName: rec.CandidateName, notify.KeyJobTitle: job.Title},
			log.Fields{"job_id": job.ID, "candidate_id": rec.CandidateID, "round": roundNumber})
	}
	return nil
}
