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

const screeningColumns = `id, job_id, candidate_id, candidate_name, candidate_email, status, score,
	shortlist_rank, created_at, updated_at`

func (s *StoreImpl) CreateScreening(ctx context.Context, sc *models.Screening) error {
	now := millis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO screenings (job_id, candidate_id, candidate_name, candidate_email, status, score, shortlist_rank, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.JobID, sc.CandidateID, sc.CandidateName, sc.CandidateEmail, sc.Status, sc.Score, sc.ShortlistRank, now, now,
	)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintUnique):
			return fmt.Errorf("candidate %s already screened for job %s: %w", sc.CandidateID, sc.JobID, store.ErrDuplicate)
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return fmt.Errorf("job %s does not exist: %w", sc.JobID, store.ErrForeignKeyViolation)
		}
		return fmt.Errorf("failed to insert screening: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read screening id: %w", err)
	}
	sc.ID = id
	sc.CreatedAt = fromMillis(now)
	sc.UpdatedAt = sc.CreatedAt
	return nil
}

func (s *StoreImpl) GetScreening(ctx context.Context, jobID, candidateID uuid.UUID) (*models.Screening, error) {
	sc := &models.Screening{}
	err := scanScreening(s.db.QueryRowContext(ctx,
		`SELECT `+screeningColumns+` FROM screenings WHERE job_id = ? AND candidate_id = ?`,
		jobID, candidateID), sc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get screening for candidate %s: %w", candidateID, err)
	}
	return sc, nil
}

func (s *StoreImpl) ListScreeningsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Screening, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+screeningColumns+` FROM screenings WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screenings for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var out []*models.Screening
	for rows.Next() {
		sc := &models.Screening{}
		if err := scanScreening(rows, sc); err != nil {
			return nil, fmt.Errorf("failed to scan screening row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating screening rows: %w", err)
	}
	return out, nil
}

func (s *StoreImpl) UpdateScreeningStatus(ctx context.Context, jobID, candidateID uuid.UUID, status models.ScreeningStatus, rank *int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE screenings SET status = ?, shortlist_rank = ?, updated_at = ?
		WHERE job_id = ? AND candidate_id = ?`,
		status, rank, millis(time.Now()), jobID, candidateID)
	if err != nil {
		return fmt.Errorf("failed to update screening status for candidate %s: %w", candidateID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("screening for candidate %s on job %s: %w", candidateID, jobID, store.ErrNotFound)
	}
	return nil
}

func (s *StoreImpl) DeleteScreening(ctx context.Context, jobID, candidateID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM screenings WHERE job_id = ? AND candidate_id = ?`, jobID, candidateID)
	if err != nil {
		return fmt.Errorf("failed to delete screening for candidate %s: %w", candidateID, err)
	}
	return nil
}

func scanScreening(row rowScanner, sc *models.Screening) error {
	var createdAt, updatedAt int64
	err := row.Scan(
		&sc.ID, &sc.JobID, &sc.CandidateID, &sc.CandidateName, &sc.CandidateEmail,
		&sc.Status, &sc.Score, &sc.ShortlistRank, &createdAt, &updatedAt,
	)
	if err != nil {
		return err
	}
	sc.CreatedAt = fromMillis(createdAt)
	sc.UpdatedAt = fromMillis(updatedAt)
	return nil
}

var _ store.ScreeningStore = (*StoreImpl)(nil)
