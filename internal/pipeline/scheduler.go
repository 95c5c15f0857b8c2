package pipeline

import (
	"context"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// ComputeSchedule dates stages in order: the first stage falls on the day after
// the anchor at startHour in loc, and each later stage follows its predecessor
// by the predecessor's gap in days. The input is not modified.
func ComputeSchedule(stages []models.PipelineStage, anchor time.Time, loc *time.Location, startHour int) []models.PipelineStage {
	job := models.Job{Pipeline: stages}
	out := job.SortedPipeline()

	a := anchor.In(loc)
	cursor := time.Date(a.Year(), a.Month(), a.Day()+1, startHour, 0, 0, 0, loc)
	for i := range out {
		date := cursor
		out[i].ScheduledDate = &date
		cursor = cursor.AddDate(0, 0, out[i].Gap())
	}
	return out
}

type Scheduler struct {
	store store.Store
	clock clockwork.Clock
	opts  Options
}

func NewScheduler(s store.Store, clock clockwork.Clock, opts Options) *Scheduler {
	return &Scheduler{store: s, clock: clock, opts: opts.withDefaults()}
}

// Schedule loads the job and schedules it. A nil anchor means the submission
// deadline, or now when the job has none.
func (s *Scheduler) Schedule(ctx context.Context, jobID uuid.UUID, anchor *time.Time) (*models.Job, error) {
	job, err := loadJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.ScheduleJob(ctx, job, anchor); err != nil {
		return nil, err
	}
	return job, nil
}

// ScheduleJob overwrites every stage date, marks the job scheduled and copies
// the dates into the job's existing progress records. Calling it again with the
// same anchor yields the same dates.
func (s *Scheduler) ScheduleJob(ctx context.Context, job *models.Job, anchor *time.Time) error {
	if len(job.Pipeline) == 0 {
		return fmt.Errorf("%w: job %s has an empty pipeline", models.ErrValidation, job.ID)
	}
	logger := log.WithField("job_id", job.ID)

	stages := job.SortedPipeline()
	if !models.ContiguousOrders(stages) {
		if err := s.normalizeOrders(ctx, job, stages); err != nil {
			return err
		}
	}

	at := s.clock.Now()
	switch {
	case anchor != nil:
		at = *anchor
	case job.SubmissionDeadline != nil:
		at = *job.SubmissionDeadline
	}

	if job.TotalRounds != 0 && job.TotalRounds != len(stages) {
		logger.WithFields(log.Fields{"total_rounds": job.TotalRounds, "stages": len(stages)}).
			Warn("total rounds differ from pipeline length; existing records keep their round count")
	}

	job.Pipeline = ComputeSchedule(stages, at, s.opts.Location, s.opts.StartHour)
	job.TotalRounds = len(job.Pipeline)
	job.SchedulingDone = true
	start := *job.Pipeline[0].ScheduledDate
	job.SchedulingStartDate = &start

	if err := s.store.SaveJobSchedule(ctx, job); err != nil {
		return fmt.Errorf("failed to save schedule for job %s: %w", job.ID, err)
	}
	logger.WithField("start", start.Format(time.RFC3339)).Info("pipeline scheduled")

	return s.propagate(ctx, job)
}

// normalizeOrders renumbers stages to 1..N. Once progress records exist they
// reference rounds by order, so renumbering is refused.
func (s *Scheduler) normalizeOrders(ctx context.Context, job *models.Job, sorted []models.PipelineStage) error {
	recs, err := s.store.ListProgressByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list progress for job %s: %w", job.ID, err)
	}
	if len(recs) > 0 {
		return fmt.Errorf("%w: stage orders of job %s are not contiguous and progress records already reference them",
			models.ErrValidation, job.ID)
	}
	for i := range sorted {
		sorted[i].Order = i + 1
	}
	log.WithField("job_id", job.ID).Info("stage orders renumbered")
	return nil
}

// propagate copies stage dates onto existing records. Completed records are left alone.
func (s *Scheduler) propagate(ctx context.Context, job *models.Job) error {
	recs, err := s.store.ListProgressByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list progress for job %s: %w", job.ID, err)
	}

	failed := 0
	for _, rec := range recs {
		logger := log.WithFields(log.Fields{"job_id": job.ID, "candidate_id": rec.CandidateID})
		if len(rec.Rounds) != len(job.Pipeline) {
			logger.WithFields(log.Fields{"rounds": len(rec.Rounds), "stages": len(job.Pipeline)}).
				Warn("progress record round count differs from pipeline; matching by round number")
		}
		_, err := mutateProgress(ctx, s.store, rec, func(r *models.ProgressRecord) (bool, error) {
			if r.Status == models.ProgressStatusCompleted {
				return false, nil
			}
			r.ApplySchedule(job.Pipeline)
			return true, nil
		})
		if err != nil {
			failed++
			logger.WithError(err).Error("failed to propagate schedule")
		}
	}
	if failed > 0 {
		return fmt.Errorf("schedule propagation failed for %d of %d records of job %s", failed, len(recs), job.ID)
	}
	return nil
}
