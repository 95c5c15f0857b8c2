package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const jobColumns = `id, title, status, total_rounds, submission_deadline, top_n, scheduling_done,
	scheduling_start_date, auto_rejection_done, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *StoreImpl) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, title, status, total_rounds, submission_deadline, top_n, scheduling_done,
			scheduling_start_date, auto_rejection_done, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Title, job.Status, job.TotalRounds, nullMillis(job.SubmissionDeadline), job.TopN,
		job.SchedulingDone, nullMillis(job.SchedulingStartDate), job.AutoRejectionDone, millis(now), millis(now),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) || isConstraint(err, sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("job %s already exists: %w", job.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	if err := insertStages(ctx, tx, job.ID, job.Pipeline); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	job.CreatedAt = fromMillis(millis(now))
	job.UpdatedAt = job.CreatedAt
	return nil
}

func insertStages(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, stages []models.PipelineStage) error {
	for _, st := range stages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pipeline_stages (job_id, stage_order, stage_kind, name, threshold_score, days_after_prev, scheduled_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			jobID, st.Order, st.StageKind, st.Name, st.Threshold(), st.Gap(), nullMillis(st.ScheduledDate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert stage %d for job %s: %w", st.Order, jobID, err)
		}
	}
	return nil
}

func (s *StoreImpl) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job := &models.Job{}
	err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id), job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if err := s.loadStages(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *StoreImpl) ListJobs(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
}

func (s *StoreImpl) ListSchedulableJobs(ctx context.Context) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? AND scheduling_done = 1 ORDER BY created_at, rowid`,
		models.JobStatusActive)
}

func (s *StoreImpl) ListJobsDueForReaping(ctx context.Context, now time.Time) ([]*models.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE submission_deadline IS NOT NULL AND submission_deadline <= ?
		  AND auto_rejection_done = 0 AND status <> ?
		ORDER BY submission_deadline, rowid`,
		millis(now), models.JobStatusClosed)
}

func (s *StoreImpl) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, millis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update status for job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found to update status: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *StoreImpl) SaveJobSchedule(ctx context.Context, job *models.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET scheduling_done = ?, scheduling_start_date = ?, total_rounds = ?, updated_at = ?
		WHERE id = ?`,
		job.SchedulingDone, nullMillis(job.SchedulingStartDate), job.TotalRounds, millis(time.Now()), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule for job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found to save schedule: %w", job.ID, store.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_stages WHERE job_id = ?`, job.ID); err != nil {
		return fmt.Errorf("failed to clear stages for job %s: %w", job.ID, err)
	}
	if err := insertStages(ctx, tx, job.ID, job.Pipeline); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *StoreImpl) MarkAutoRejectionDone(ctx context.Context, id uuid.UUID, closeJob bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET auto_rejection_done = 1,
		    status = CASE WHEN ? THEN 'closed' ELSE status END,
		    updated_at = ?
		WHERE id = ? AND auto_rejection_done = 0`,
		closeJob, millis(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to set auto rejection latch for job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read latch result for job %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *StoreImpl) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	var jobs []*models.Job
	for rows.Next() {
		job := &models.Job{}
		if err := scanJob(rows, job); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	// Release the single connection before loading stages.
	rows.Close()

	for _, job := range jobs {
		if err := s.loadStages(ctx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *StoreImpl) loadStages(ctx context.Context, job *models.Job) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage_order, stage_kind, name, threshold_score, days_after_prev, scheduled_date
		FROM pipeline_stages WHERE job_id = ? ORDER BY stage_order`, job.ID)
	if err != nil {
		return fmt.Errorf("failed to query stages for job %s: %w", job.ID, err)
	}
	defer rows.Close()

	job.Pipeline = nil
	for rows.Next() {
		var st models.PipelineStage
		var scheduled sql.NullInt64
		if err := rows.Scan(&st.Order, &st.StageKind, &st.Name, &st.ThresholdScore, &st.DaysAfterPrev, &scheduled); err != nil {
			return fmt.Errorf("failed to scan stage row: %w", err)
		}
		st.ScheduledDate = fromNullMillis(scheduled)
		job.Pipeline = append(job.Pipeline, st)
	}
	return rows.Err()
}

func scanJob(row rowScanner, job *models.Job) error {
	var deadline, startDate sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Status,
		&job.TotalRounds,
		&deadline,
		&job.TopN,
		&job.SchedulingDone,
		&startDate,
		&job.AutoRejectionDone,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return err
	}
	job.SubmissionDeadline = fromNullMillis(deadline)
	job.SchedulingStartDate = fromNullMillis(startDate)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return nil
}

var _ store.JobStore = (*StoreImpl)(nil)
