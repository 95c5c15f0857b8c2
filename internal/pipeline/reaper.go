package pipeline

import (
	"context"
	"fmt"
	"sort"

	"stagehand/internal/models"
	"stagehand/internal/notify"
	"stagehand/internal/store"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// ReapResult summarizes one reaper tick.
type ReapResult struct {
	Jobs        int `json:"jobs"`
	Finalized   int `json:"finalized"`
	Shortlisted int `json:"shortlisted"`
	Rejected    int `json:"rejected"`
	Closed      int `json:"closed"`
	Failed      int `json:"failed"`
}

// Reaper performs the one-time cutover of a job once its submission deadline
// has passed: rank screened candidates, shortlist the top N, reject the rest.
type Reaper struct {
	store     store.Store
	scheduler *Scheduler
	notifier  notify.Notifier
	clock     clockwork.Clock
	opts      Options
}

func NewReaper(s store.Store, sched *Scheduler, n notify.Notifier, clock clockwork.Clock, opts Options) *Reaper {
	return &Reaper{store: s, scheduler: sched, notifier: n, clock: clock, opts: opts.withDefaults()}
}

// Tick finalizes every due job, one job at a time. Only a failure to list jobs
// is returned.
func (r *Reaper) Tick(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	jobs, err := r.store.ListJobsDueForReaping(ctx, r.clock.Now())
	if err != nil {
		return res, fmt.Errorf("failed to list jobs due for reaping: %w", err)
	}
	res.Jobs = len(jobs)

	for _, job := range jobs {
		jr, err := r.reapJob(ctx, job)
		res.Shortlisted += jr.shortlisted
		res.Rejected += jr.rejected
		if err != nil {
			res.Failed++
			log.WithField("job_id", job.ID).WithError(err).Error("job cutover incomplete, will retry next tick")
			continue
		}
		if jr.latched {
			res.Finalized++
		}
		if jr.closed {
			res.Closed++
		}
	}

	log.WithFields(log.Fields{
		"jobs":        res.Jobs,
		"finalized":   res.Finalized,
		"shortlisted": res.Shortlisted,
		"rejected":    res.Rejected,
		"closed":      res.Closed,
		"failed":      res.Failed,
	}).Info("reaper tick finished")
	return res, nil
}

type jobReap struct {
	shortlisted int
	rejected    int
	latched     bool
	closed      bool
}

// reapJob runs the cutover for one job. The latch is written last and only when
// every candidate was handled, so a partial run is repeated in full next time;
// each step is safe to repeat.
func (r *Reaper) reapJob(ctx context.Context, job *models.Job) (jobReap, error) {
	var jr jobReap
	logger := log.WithField("job_id", job.ID)

	screenings, err := r.store.ListScreeningsByJob(ctx, job.ID)
	if err != nil {
		return jr, fmt.Errorf("failed to list screenings: %w", err)
	}

	failures := 0
	var ranked []*models.Screening
	for _, sc := range screenings {
		switch sc.Status {
		case models.ScreeningStatusPending:
			// Never scored.
			if err := r.rejectScreening(ctx, job, sc); err != nil {
				failures++
				logger.WithField("candidate_id", sc.CandidateID).WithError(err).Error("failed to reject unscored candidate")
				continue
			}
			jr.rejected++
		case models.ScreeningStatusScreened, models.ScreeningStatusShortlisted:
			ranked = append(ranked, sc)
		case models.ScreeningStatusRejected:
			// Left over from a run that failed before removing it.
			if err := r.store.DeleteScreening(ctx, job.ID, sc.CandidateID); err != nil {
				failures++
				logger.WithField("candidate_id", sc.CandidateID).WithError(err).Error("failed to remove rejected candidate")
			}
		}
	}

	// Stable: equal scores keep screening order.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].BestScore() > ranked[j].BestScore() })

	topN := job.TopN
	if topN <= 0 {
		topN = models.DefaultTopN
	}
	cut := min(topN, len(ranked))

	for i, sc := range ranked[:cut] {
		if err := r.shortlist(ctx, job, sc, i+1); err != nil {
			failures++
			logger.WithField("candidate_id", sc.CandidateID).WithError(err).Error("failed to shortlist candidate")
			continue
		}
		jr.shortlisted++
	}

	// Shortlisted records must carry stage dates before the advancer sees them.
	// A job without a shortlist is closed below and is left unscheduled.
	if cut > 0 && len(job.Pipeline) > 0 && !job.SchedulingDone {
		if err := r.scheduler.ScheduleJob(ctx, job, job.SubmissionDeadline); err != nil {
			failures++
			logger.WithError(err).Error("failed to schedule pipeline")
		}
	}

	for _, sc := range ranked[cut:] {
		if err := r.rejectScreening(ctx, job, sc); err != nil {
			failures++
			logger.WithField("candidate_id", sc.CandidateID).WithError(err).Error("failed to reject candidate")
			continue
		}
		jr.rejected++
	}

	if failures > 0 {
		return jr, fmt.Errorf("%d candidate operations failed", failures)
	}

	closeJob := cut == 0
	latched, err := r.store.MarkAutoRejectionDone(ctx, job.ID, closeJob)
	if err != nil {
		return jr, err
	}
	if !latched {
		logger.Debug("job already finalized by another run")
		return jr, nil
	}
	jr.latched = true
	jr.closed = closeJob
	logger.WithFields(log.Fields{"shortlisted": jr.shortlisted, "rejected": jr.rejected, "closed": closeJob}).Info("job finalized")
	return jr, nil
}

// shortlist marks the screening and creates or refreshes the candidate's
// progress record. An existing record keeps its rounds.
func (r *Reaper) shortlist(ctx context.Context, job *models.Job, sc *models.Screening, rank int) error {
	wasShortlisted := sc.Status == models.ScreeningStatusShortlisted
	if err := r.store.UpdateScreeningStatus(ctx, job.ID, sc.CandidateID, models.ScreeningStatusShortlisted, intPtr(rank)); err != nil {
		return fmt.Errorf("failed to mark shortlisted: %w", err)
	}

	rec := &models.ProgressRecord{
		JobID:          job.ID,
		CandidateID:    sc.CandidateID,
		CandidateName:  sc.CandidateName,
		CandidateEmail: sc.CandidateEmail,
		CandidateScore: sc.BestScore(),
		Rounds:         models.NewRoundSkeleton(job),
		Status:         models.ProgressStatusPending,
		Rank:           intPtr(rank),
	}
	if err := r.store.UpsertProgress(ctx, rec); err != nil {
		return err
	}

	if !wasShortlisted {
		notify.Deliver(ctx, r.notifier, r.opts.NotifyTimeout, sc.CandidateEmail, notify.KindShortlisted,
			map[string]any{notify.KeyCandidateName: sc.CandidateName, notify.KeyJobTitle: job.Title, notify.KeyRank: rank},
			log.Fields{"job_id": job.ID, "candidate_id": sc.CandidateID})
	}
	return nil
}

// rejectScreening emails first, then rejects and removes the entry. The email
// outcome never blocks the state change.
func (r *Reaper) rejectScreening(ctx context.Context, job *models.Job, sc *models.Screening) error {
	notify.Deliver(ctx, r.notifier, r.opts.NotifyTimeout, sc.CandidateEmail, notify.KindRejected,
		map[string]any{notify.KeyCandidateName: sc.CandidateName, notify.KeyJobTitle: job.Title},
		log.Fields{"job_id": job.ID, "candidate_id": sc.CandidateID})

	if err := r.store.UpdateScreeningStatus(ctx, job.ID, sc.CandidateID, models.ScreeningStatusRejected, nil); err != nil {
		return fmt.Errorf("failed to mark rejected: %w", err)
	}
	if err := r.store.DeleteScreening(ctx, job.ID, sc.CandidateID); err != nil {
		return err
	}
	return nil
}
