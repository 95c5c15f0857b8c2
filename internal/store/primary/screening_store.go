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
)

// --- Screening Management ---

const screeningColumns = `id, job_id, candidate_id, candidate_name, candidate_email, status, score,
	shortlist_rank, created_at, updated_at`

func (s *StoreImpl) CreateScreening(ctx context.Context, sc *models.Screening) error {
	query := `
		INSERT INTO screenings (job_id, candidate_id, candidate_name, candidate_email, status, score, shortlist_rank, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	now := time.Now()
	err := s.db.QueryRow(ctx, query,
		sc.JobID, sc.CandidateID, sc.CandidateName, sc.CandidateEmail, sc.Status, sc.Score, sc.ShortlistRank, now, now,
	).Scan(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				return fmt.Errorf("candidate %s already screened for job %s: %w", sc.CandidateID, sc.JobID, store.ErrDuplicate)
			case "23503": // foreign_key_violation
				return fmt.Errorf("job %s does not exist: %w", sc.JobID, store.ErrForeignKeyViolation)
			}
		}
		return fmt.Errorf("failed to insert screening: %w", err)
	}
	return nil
}

func (s *StoreImpl) GetScreening(ctx context.Context, jobID, candidateID uuid.UUID) (*models.Screening, error) {
	sc := &models.Screening{}
	err := scanScreening(s.db.QueryRow(ctx,
		`SELECT `+screeningColumns+` FROM screenings WHERE job_id = $1 AND candidate_id = $2`,
		jobID, candidateID), sc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get screening for candidate %s: %w", candidateID, err)
	}
	return sc, nil
}

func (s *StoreImpl) ListScreeningsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Screening, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+screeningColumns+` FROM screenings WHERE job_id = $1 ORDER BY id`, jobID)
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
	cmdTag, err := s.db.Exec(ctx, `
		UPDATE screenings SET status = $1, shortlist_rank = $2, updated_at = $3
		WHERE job_id = $4 AND candidate_id = $5`,
		status, rank, time.Now(), jobID, candidateID)
	if err != nil {
		return fmt.Errorf("failed to update screening status for candidate %s: %w", candidateID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("screening for candidate %s on job %s: %w", candidateID, jobID, store.ErrNotFound)
	}
	return nil
}

// DeleteScreening is a no-op when the entry is already gone.
func (s *StoreImpl) DeleteScreening(ctx context.Context, jobID, candidateID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM screenings WHERE job_id = $1 AND candidate_id = $2`, jobID, candidateID)
	if err != nil {
		return fmt.Errorf("failed to delete screening for candidate %s: %w", candidateID, err)
	}
	return nil
}

func scanScreening(row pgx.Row, sc *models.Screening) error {
	return row.Scan(
		&sc.ID, &sc.JobID, &sc.CandidateID, &sc.CandidateName, &sc.CandidateEmail,
		&sc.Status, &sc.Score, &sc.ShortlistRank, &sc.CreatedAt, &sc.UpdatedAt,
	)
}

var _ store.ScreeningStore = (*StoreImpl)(nil)
