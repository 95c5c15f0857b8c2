package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Progress Store Implementation ---

const progressColumns = `id, job_id, candidate_id, candidate_name, candidate_email, candidate_score,
	rounds, status, rank, version, created_at, updated_at`

func (s *StoreImpl) GetProgress(ctx context.Context, jobID, candidateID uuid.UUID) (*models.ProgressRecord, error) {
	rec := &models.ProgressRecord{}
	err := scanProgress(s.db.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE job_id = $1 AND candidate_id = $2`,
		jobID, candidateID), rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress for candidate %s on job %s: %w", candidateID, jobID, err)
	}
	return rec, nil
}

func (s *StoreImpl) ListProgressByJob(ctx context.Context, jobID uuid.UUID) ([]*models.ProgressRecord, error) {
	return s.queryProgress(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE job_id = $1 ORDER BY rank ASC NULLS LAST, id`,
		jobID)
}

// ListProgressByRoundStatus filters on the JSONB round element; rounds are stored
// ordered by round number, so round n lives at array index n-1.
func (s *StoreImpl) ListProgressByRoundStatus(ctx context.Context, jobID uuid.UUID, roundNumber int, status models.RoundStatus) ([]*models.ProgressRecord, error) {
	return s.queryProgress(ctx, `
		SELECT `+progressColumns+` FROM progress_records
		WHERE job_id = $1 AND rounds -> ($2::int) ->> 'status' = $3
		ORDER BY id`,
		jobID, roundNumber-1, string(status))
}

// UpsertProgress is the insert-or-refresh used when shortlisting. Rounds and status
// are only written on insert.
func (s *StoreImpl) UpsertProgress(ctx context.Context, rec *models.ProgressRecord) error {
	roundsJSON, err := json.Marshal(rec.Rounds)
	if err != nil {
		return fmt.Errorf("failed to marshal rounds: %w", err)
	}
	now := time.Now()
	query := `
		INSERT INTO progress_records (job_id, candidate_id, candidate_name, candidate_email, candidate_score,
			rounds, status, rank, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
		ON CONFLICT (candidate_id, job_id) DO UPDATE SET
			candidate_name = EXCLUDED.candidate_name,
			candidate_email = EXCLUDED.candidate_email,
			candidate_score = EXCLUDED.candidate_score,
			rank = EXCLUDED.rank,
			version = progress_records.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + progressColumns
	err = scanProgress(s.db.QueryRow(ctx, query,
		rec.JobID, rec.CandidateID, rec.CandidateName, rec.CandidateEmail, rec.CandidateScore,
		roundsJSON, rec.Status, rec.Rank, now,
	), rec)
	if err != nil {
		return fmt.Errorf("failed to upsert progress for candidate %s on job %s: %w", rec.CandidateID, rec.JobID, err)
	}
	return nil
}

func (s *StoreImpl) UpdateProgress(ctx context.Context, rec *models.ProgressRecord) error {
	roundsJSON, err := json.Marshal(rec.Rounds)
	if err != nil {
		return fmt.Errorf("failed to marshal rounds: %w", err)
	}
	now := time.Now()
	query := `
		UPDATE progress_records
		SET rounds = $1, status = $2, candidate_score = $3, rank = $4, version = version + 1, updated_at = $5
		WHERE job_id = $6 AND candidate_id = $7 AND version = $8`
	cmdTag, err := s.db.Exec(ctx, query,
		roundsJSON, rec.Status, rec.CandidateScore, rec.Rank, now, rec.JobID, rec.CandidateID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress for candidate %s on job %s: %w", rec.CandidateID, rec.JobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("progress for candidate %s on job %s changed since version %d: %w",
			rec.CandidateID, rec.JobID, rec.Version, store.ErrConflict)
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// --- Helpers ---

func (s *StoreImpl) queryProgress(ctx context.Context, query string, args ...any) ([]*models.ProgressRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress records: %w", err)
	}
	defer rows.Close()

	var recs []*models.ProgressRecord
	for rows.Next() {
		rec := &models.ProgressRecord{}
		if err := scanProgress(rows, rec); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress rows: %w", err)
	}
	return recs, nil
}

func scanProgress(row pgx.Row, rec *models.ProgressRecord) error {
	var roundsJSON []byte
	err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.CandidateID,
		&rec.CandidateName,
		&rec.CandidateEmail,
		&rec.CandidateScore,
		&roundsJSON,
		&rec.Status,
		&rec.Rank,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rec.Rounds = nil
	if err := json.Unmarshal(roundsJSON, &rec.Rounds); err != nil {
		return fmt.Errorf("failed to decode rounds: %w", err)
	}
	return nil
}

var _ store.ProgressStore = (*StoreImpl)(nil)
