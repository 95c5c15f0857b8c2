package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// --- Job Store Implementation ---

const jobColumns = `id, title, status, total_rounds, submission_deadline, top_n, scheduling_done,
	scheduling_start_date, auto_rejection_done, created_at, updated_at`

// CreateJob inserts a job and its pipeline stages in one transaction.
func (s *StoreImpl) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO jobs (id, title, status, total_rounds, submission_deadline, top_n, scheduling_done,
			scheduling_start_date, auto_rejection_done, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`
	err = tx.QueryRow(ctx, query,
		job.ID, job.Title, job.Status, job.TotalRounds, job.SubmissionDeadline, job.TopN,
		job.SchedulingDone, job.SchedulingStartDate, job.AutoRejectionDone, now, now,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("job %s already exists: %w", job.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := insertStages(ctx, tx, job.ID, job.Pipeline); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertStages(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, stages []models.PipelineStage) error {
	for _, st := range stages {
		_, err := tx.Exec(ctx, `
			INSERT INTO pipeline_stages (job_id, stage_order, stage_kind, name, threshold_score, days_after_prev, scheduled_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			jobID, st.Order, st.StageKind, st.Name, st.Threshold(), st.Gap(), st.ScheduledDate,
		)
		if err != nil {
			return fmt.Errorf("failed to insert stage %d for job %s: %w", st.Order, jobID, err)
		}
	}
	return nil
}

// GetJob retrieves a job with its pipeline.
func (s *StoreImpl) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job := &models.Job{}
	err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id), job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if err := s.loadStages(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs lists jobs newest first.
func (s *StoreImpl) ListJobs(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *StoreImpl) ListSchedulableJobs(ctx context.Context) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = $1 AND scheduling_done = TRUE ORDER BY created_at`,
		models.JobStatusActive)
}

func (s *StoreImpl) ListJobsDueForReaping(ctx context.Context, now time.Time) ([]*models.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE submission_deadline IS NOT NULL AND submission_deadline <= $1
		  AND auto_rejection_done = FALSE AND status <> $2
		ORDER BY submission_deadline`,
		now, models.JobStatusClosed)
}

func (s *StoreImpl) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	cmdTag, err := s.db.Exec(ctx, `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status for job %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found to update status: %w", id, store.ErrNotFound)
	}
	return nil
}

// SaveJobSchedule rewrites the stage rows, so repeated scheduling overwrites rather than appends.
func (s *StoreImpl) SaveJobSchedule(ctx context.Context, job *models.Job) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `
		UPDATE jobs SET scheduling_done = $1, scheduling_start_date = $2, total_rounds = $3, updated_at = $4
		WHERE id = $5`,
		job.SchedulingDone, job.SchedulingStartDate, job.TotalRounds, time.Now(), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule for job %s: %w", job.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found to save schedule: %w", job.ID, store.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pipeline_stages WHERE job_id = $1`, job.ID); err != nil {
		return fmt.Errorf("failed to clear stages for job %s: %w", job.ID, err)
	}
	if err := insertStages(ctx, tx, job.ID, job.Pipeline); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkAutoRejectionDone flips the latch only while it is still false.
func (s *StoreImpl) MarkAutoRejectionDone(ctx context.Context, id uuid.UUID, closeJob bool) (bool, error) {
	query := `
		UPDATE jobs
		SET auto_rejection_done = TRUE,
		    status = CASE WHEN $1 THEN 'closed' ELSE status END,
		    updated_at = $2
		WHERE id = $3 AND auto_rejection_done = FALSE`
	cmdTag, err := s.db.Exec(ctx, query, closeJob, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set auto rejection latch for job %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.WithField("job_id", id).Debug("auto rejection latch already set")
		return false, nil
	}
	return true, nil
}

// --- Helpers ---

func (s *StoreImpl) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job := &models.Job{}
		if err := scanJob(rows, job); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	rows.Close()

	for _, job := range jobs {
		if err := s.loadStages(ctx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *StoreImpl) loadStages(ctx context.Context, job *models.Job) error {
	rows, err := s.db.Query(ctx, `
		SELECT stage_order, stage_kind, name, threshold_score, days_after_prev, scheduled_date
		FROM pipeline_stages WHERE job_id = $1 ORDER BY stage_order`, job.ID)
	if err != nil {
		return fmt.Errorf("failed to query stages for job %s: %w", job.ID, err)
	}
	defer rows.Close()

	job.Pipeline = job.Pipeline[:0]
	for rows.Next() {
		var st models.PipelineStage
		if err := rows.Scan(&st.Order, &st.StageKind, &st.Name, &st.ThresholdScore, &st.DaysAfterPrev, &st.ScheduledDate); err != nil {
			return fmt.Errorf("failed to scan stage row: %w", err)
		}
		job.Pipeline = append(job.Pipeline, st)
	}
	return rows.Err()
}

func scanJob(row pgx.Row, job *models.Job) error {
	return row.Scan(
		&job.ID,
		&job.Title,
		&job.Status,
		&job.TotalRounds,
		&job.SubmissionDeadline,
		&job.TopN,
		&job.SchedulingDone,
		&job.SchedulingStartDate,
		&job.AutoRejectionDone,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

// Ensure StoreImpl satisfies the JobStore interface
var _ store.JobStore = (*StoreImpl)(nil)
