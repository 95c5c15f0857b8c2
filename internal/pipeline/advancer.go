package pipeline

import (
	"context"
	"errors"
	"fmt"

	"stagehand/internal/models"
	"stagehand/internal/notify"
	"stagehand/internal/store"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// AdvanceResult summarizes one advancement tick.
type AdvanceResult struct {
	Jobs      int `json:"jobs"`
	Advanced  int `json:"advanced"`
	Notified  int `json:"notified"`
	Anomalies int `json:"anomalies"`
	Failed    int `json:"failed"`
}

// Advancer opens due rounds: a pending round whose stage date has passed moves
// to in_progress and the candidate gets the assessment link.
type Advancer struct {
	store    store.Store
	notifier notify.Notifier
	clock    clockwork.Clock
	opts     Options
}

func NewAdvancer(s store.Store, n notify.Notifier, clock clockwork.Clock, opts Options) *Advancer {
	return &Advancer{store: s, notifier: n, clock: clock, opts: opts.withDefaults()}
}

// Tick runs one pass over active, scheduled jobs. Only a failure to list jobs is
// returned; per-record problems are logged and counted.
func (a *Advancer) Tick(ctx context.Context) (AdvanceResult, error) {
	var res AdvanceResult
	now := a.clock.Now()

	jobs, err := a.store.ListSchedulableJobs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list schedulable jobs: %w", err)
	}
	res.Jobs = len(jobs)

	for _, job := range jobs {
		for _, stage := range job.SortedPipeline() {
			if stage.ScheduledDate == nil || stage.ScheduledDate.After(now) {
				continue
			}
			a.advanceStage(ctx, job, stage, &res)
		}
	}

	log.WithFields(log.Fields{
		"jobs":      res.Jobs,
		"advanced":  res.Advanced,
		"notified":  res.Notified,
		"anomalies": res.Anomalies,
		"failed":    res.Failed,
	}).Info("advancement tick finished")
	return res, nil
}

func (a *Advancer) advanceStage(ctx context.Context, job *models.Job, stage models.PipelineStage, res *AdvanceResult) {
	logger := log.WithFields(log.Fields{"job_id": job.ID, "round": stage.Order})

	recs, err := a.store.ListProgressByRoundStatus(ctx, job.ID, stage.Order, models.RoundStatusPending)
	if err != nil {
		res.Failed++
		logger.WithError(err).Error("failed to list pending rounds")
		return
	}

	for _, rec := range recs {
		recLogger := logger.WithField("candidate_id", rec.CandidateID)
		_, err := mutateProgress(ctx, a.store, rec, func(r *models.ProgressRecord) (bool, error) {
			return true, r.StartRound(stage.Order)
		})
		switch {
		case errors.Is(err, models.ErrConcurrencyAnomaly):
			// Another tick or a manual send got there first.
			res.Anomalies++
			recLogger.WithError(err).Debug("round no longer pending, skipping")
			continue
		case err != nil:
			res.Failed++
			recLogger.WithError(err).Error("failed to advance round")
			continue
		}

		res.Advanced++
		recLogger.Info("round started")
		if notify.Deliver(ctx, a.notifier, a.opts.NotifyTimeout, rec.CandidateEmail, notify.KindAssessmentLink,
			assessmentData(job, rec, stage.Order), log.Fields{"job_id": job.ID, "candidate_id": rec.CandidateID, "round": stage.Order}) {
			res.Notified++
		}
	}
}

func assessmentData(job *models.Job, rec *models.ProgressRecord, round int) map[string]any {
	data := map[string]any{
		notify.KeyCandidateName: rec.CandidateName,
		notify.KeyJobTitle:      job.Title,
		notify.KeyRoundNumber:   round,
	}
	if r, ok := rec.Round(round); ok {
		data[notify.KeyRoundName] = r.RoundName
		if r.ScheduledDate != nil {
			data[notify.KeyScheduledDate] = r.ScheduledDate.Format("2006-01-02 15:04 MST")
		}
	}
	return data
}
