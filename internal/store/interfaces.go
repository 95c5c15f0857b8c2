package store

import (
	"context"
	"time"

	"stagehand/internal/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// --- Job Client ---

type JobClient interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueueElimination(ctx context.Context, jobID uuid.UUID, roundNumber int) error
	Close() error
}

// --- Job Store (pipeline definitions) ---

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*models.Job, error)
	// ListSchedulableJobs returns active jobs whose pipeline has been scheduled.
	ListSchedulableJobs(ctx context.Context) ([]*models.Job, error)
	// ListJobsDueForReaping returns jobs with a deadline at or before now that are
	// neither latched nor closed.
	ListJobsDueForReaping(ctx context.Context, now time.Time) ([]*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	// SaveJobSchedule replaces the job's stages and stores the scheduling flags.
	SaveJobSchedule(ctx context.Context, job *models.Job) error
	// MarkAutoRejectionDone sets the latch (and closes the job when closeJob is set).
	// It reports false when the latch was already set.
	MarkAutoRejectionDone(ctx context.Context, id uuid.UUID, closeJob bool) (bool, error)

	Ping(ctx context.Context) error
}

// --- Progress Store ---

type ProgressStore interface {
	GetProgress(ctx context.Context, jobID, candidateID uuid.UUID) (*models.ProgressRecord, error)
	// ListProgressByJob returns records ordered by rank, unranked last.
	ListProgressByJob(ctx context.Context, jobID uuid.UUID) ([]*models.ProgressRecord, error)
	// ListProgressByRoundStatus returns records whose round roundNumber is in status.
	ListProgressByRoundStatus(ctx context.Context, jobID uuid.UUID, roundNumber int, status models.RoundStatus) ([]*models.ProgressRecord, error)
	// UpsertProgress inserts rec, or on an existing (candidate, job) pair refreshes the
	// candidate snapshot, score and rank while keeping the stored rounds and status.
	// rec is refreshed from the stored row.
	UpsertProgress(ctx context.Context, rec *models.ProgressRecord) error
	// UpdateProgress writes rounds, status, score and rank if the stored version still
	// equals rec.Version; otherwise it returns ErrConflict. rec.Version is bumped on success.
	UpdateProgress(ctx context.Context, rec *models.ProgressRecord) error
}

// --- Screening Store ---

type ScreeningStore interface {
	CreateScreening(ctx context.Context, s *models.Screening) error
	GetScreening(ctx context.Context, jobID, candidateID uuid.UUID) (*models.Screening, error)
	// ListScreeningsByJob returns entries in creation order.
	ListScreeningsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Screening, error)
	UpdateScreeningStatus(ctx context.Context, jobID, candidateID uuid.UUID, status models.ScreeningStatus, rank *int) error
	DeleteScreening(ctx context.Context, jobID, candidateID uuid.UUID) error
}

// Migrator is implemented by stores that carry an embedded schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Store is everything the pipeline needs from persistence.
type Store interface {
	JobStore
	ProgressStore
	ScreeningStore
	Close()
}
