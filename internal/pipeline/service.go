package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/notify"
	"stagehand/internal/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EliminationEnqueuer hands an elimination run to the task queue.
type EliminationEnqueuer interface {
	EnqueueElimination(ctx context.Context, jobID uuid.UUID, roundNumber int) error
}

// Service is the entry point for the HTTP API and the CLI.
type Service struct {
	store      store.Store
	scheduler  *Scheduler
	eliminator *Eliminator
	notifier   notify.Notifier
	enqueuer   EliminationEnqueuer
	opts       Options
}

// NewService wires the service. enqueuer may be nil, in which case eliminations
// triggered by a failing score run inline.
func NewService(s store.Store, sched *Scheduler, elim *Eliminator, n notify.Notifier, enqueuer EliminationEnqueuer, opts Options) *Service {
	return &Service{
		store:      s,
		scheduler:  sched,
		eliminator: elim,
		notifier:   n,
		enqueuer:   enqueuer,
		opts:       opts.withDefaults(),
	}
}

// Location is the time zone stage dates are computed in.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// --- Jobs ---

func (s *Service) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: job %s already exists", models.ErrConflict, job.ID)
		}
		return nil, err
	}
	log.WithFields(log.Fields{"job_id": job.ID, "stages": len(job.Pipeline)}).Info("job created")
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return loadJob(ctx, s.store, id)
}

func (s *Service) ListJobs(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListJobs(ctx, limit, offset)
}

// Schedule dates the job's pipeline; see Scheduler.ScheduleJob.
func (s *Service) Schedule(ctx context.Context, jobID uuid.UUID, anchor *time.Time) (*models.Job, error) {
	return s.scheduler.Schedule(ctx, jobID, anchor)
}

// ShortlistStage runs the elimination for a round and returns the rejected count.
func (s *Service) ShortlistStage(ctx context.Context, jobID uuid.UUID, roundNumber int) (int, error) {
	return s.eliminator.Eliminate(ctx, jobID, roundNumber)
}

// --- Progress ---

// PipelineProgress is the job with every progress record, ordered by rank.
type PipelineProgress struct {
	Job     *models.Job              `json:"job"`
	Records []*models.ProgressRecord `json:"records"`
}

func (s *Service) PipelineProgress(ctx context.Context, jobID uuid.UUID) (*PipelineProgress, error) {
	job, err := loadJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListProgressByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for job %s: %w", jobID, err)
	}
	if recs == nil {
		recs = []*models.ProgressRecord{}
	}
	return &PipelineProgress{Job: job, Records: recs}, nil
}

// --- Screenings ---

// AddScreening registers a candidate for a job. An entry with a score is
// considered screened.
func (s *Service) AddScreening(ctx context.Context, sc *models.Screening) (*models.Screening, error) {
	if sc.CandidateID == uuid.Nil {
		sc.CandidateID = uuid.New()
	}
	if sc.Status == "" {
		sc.Status = models.ScreeningStatusPending
		if sc.Score != nil {
			sc.Status = models.ScreeningStatusScreened
		}
	}
	if sc.Score != nil && (*sc.Score < 0 || *sc.Score > 100) {
		return nil, fmt.Errorf("%w: score must be between 0 and 100", models.ErrValidation)
	}
	if _, err := loadJob(ctx, s.store, sc.JobID); err != nil {
		return nil, err
	}
	if err := s.store.CreateScreening(ctx, sc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: candidate %s is already registered for job %s", models.ErrConflict, sc.CandidateID, sc.JobID)
		}
		return nil, err
	}
	return sc, nil
}

func (s *Service) ListScreenings(ctx context.Context, jobID uuid.UUID) ([]*models.Screening, error) {
	if _, err := loadJob(ctx, s.store, jobID); err != nil {
		return nil, err
	}
	out, err := s.store.ListScreeningsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.Screening{}
	}
	return out, nil
}

// --- Grading ---

// RecordRoundScore completes a round with a score, creating the progress record
// on first use. A failing score triggers elimination for that round, through the
// task queue when one is configured.
func (s *Service) RecordRoundScore(ctx context.Context, jobID, candidateID uuid.UUID, roundNumber int, score float64) (*models.ProgressRecord, error) {
	if roundNumber < 1 {
		return nil, fmt.Errorf("%w: round number must be positive", models.ErrValidation)
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: score must be between 0 and 100", models.ErrValidation)
	}
	job, err := loadJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if roundNumber > job.RoundCount() {
		return nil, fmt.Errorf("%w: job %s has %d rounds", models.ErrValidation, jobID, job.RoundCount())
	}

	rec, err := s.loadOrCreateProgress(ctx, job, candidateID)
	if err != nil {
		return nil, err
	}
	threshold := job.ThresholdFor(roundNumber)
	if _, err := mutateProgress(ctx, s.store, rec, func(r *models.ProgressRecord) (bool, error) {
		return true, r.CompleteRound(roundNumber, score, threshold)
	}); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"job_id": jobID, "candidate_id": candidateID, "round": roundNumber, "score": score})
	logger.Info("round score recorded")

	if score < threshold {
		s.triggerElimination(ctx, jobID, roundNumber)
		if fresh, err := s.store.GetProgress(ctx, jobID, candidateID); err == nil {
			rec = fresh
		}
	}
	return rec, nil
}

// loadOrCreateProgress reads the record, creating it from the screening entry
// when absent.
func (s *Service) loadOrCreateProgress(ctx context.Context, job *models.Job, candidateID uuid.UUID) (*models.ProgressRecord, error) {
	rec, err := s.store.GetProgress(ctx, job.ID, candidateID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sc, err := s.store.GetScreening(ctx, job.ID, candidateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: candidate %s has no progress or screening for job %s", models.ErrNotFound, candidateID, job.ID)
		}
		return nil, err
	}
	rec = &models.ProgressRecord{
		JobID:          job.ID,
		CandidateID:    candidateID,
		CandidateName:  sc.CandidateName,
		CandidateEmail: sc.CandidateEmail,
		CandidateScore: sc.BestScore(),
		Rounds:         models.NewRoundSkeleton(job),
		Status:         models.ProgressStatusPending,
		Rank:           sc.ShortlistRank,
	}
	if err := s.store.UpsertProgress(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) triggerElimination(ctx context.Context, jobID uuid.UUID, roundNumber int) {
	logger := log.WithFields(log.Fields{"job_id": jobID, "round": roundNumber})
	if s.enqueuer != nil {
		err := s.enqueuer.EnqueueElimination(ctx, jobID, roundNumber)
		if err == nil {
			logger.Debug("elimination enqueued")
			return
		}
		logger.WithError(err).Warn("failed to enqueue elimination, running inline")
	}
	if _, err := s.eliminator.Eliminate(ctx, jobID, roundNumber); err != nil {
		logger.WithError(err).Error("inline elimination failed")
	}
}
