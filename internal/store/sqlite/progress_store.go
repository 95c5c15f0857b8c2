package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
)

const progressColumns = `id, job_id, candidate_id, candidate_name, candidate_email, candidate_score,
	rounds, status, rank, version, created_at, updated_at`

func (s *StoreImpl) GetProgress(ctx context.Context, jobID, candidateID uuid.UUID) (*models.ProgressRecord, error) {
	rec := &models.ProgressRecord{}
	err := scanProgress(s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE job_id = ? AND candidate_id = ?`,
		jobID, candidateID), rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress for candidate %s on job %s: %w", candidateID, jobID, err)
	}
	return rec, nil
}

func (s *StoreImpl) ListProgressByJob(ctx context.Context, jobID uuid.UUID) ([]*models.ProgressRecord, error) {
	return s.queryProgress(ctx,
		`SELECT `+progressColumns+` FROM progress_records WHERE job_id = ? ORDER BY rank IS NULL, rank, id`,
		jobID)
}

func (s *StoreImpl) ListProgressByRoundStatus(ctx context.Context, jobID uuid.UUID, roundNumber int, status models.RoundStatus) ([]*models.ProgressRecord, error) {
	path := fmt.Sprintf("$[%d].status", roundNumber-1)
	return s.queryProgress(ctx, `
		SELECT `+progressColumns+` FROM progress_records
		WHERE job_id = ? AND json_extract(rounds, ?) = ?
		ORDER BY id`,
		jobID, path, string(status))
}

func (s *StoreImpl) UpsertProgress(ctx context.Context, rec *models.ProgressRecord) error {
	roundsJSON, err := json.Marshal(rec.Rounds)
	if err != nil {
		return fmt.Errorf("failed to marshal rounds: %w", err)
	}
	now := millis(time.Now())
	query := `
		INSERT INTO progress_records (job_id, candidate_id, candidate_name, candidate_email, candidate_score,
			rounds, status, rank, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (candidate_id, job_id) DO UPDATE SET
			candidate_name = excluded.candidate_name,
			candidate_email = excluded.candidate_email,
			candidate_score = excluded.candidate_score,
			rank = excluded.rank,
			version = progress_records.version + 1,
			updated_at = excluded.updated_at
		RETURNING ` + progressColumns
	err = scanProgress(s.db.QueryRowContext(ctx, query,
		rec.JobID, rec.CandidateID, rec.CandidateName, rec.CandidateEmail, rec.CandidateScore,
		string(roundsJSON), rec.Status, rec.Rank, now, now,
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
	res, err := s.db.ExecContext(ctx, `
		UPDATE progress_records
		SET rounds = ?, status = ?, candidate_score = ?, rank = ?, version = version + 1, updated_at = ?
		WHERE job_id = ? AND candidate_id = ? AND version = ?`,
		string(roundsJSON), rec.Status, rec.CandidateScore, rec.Rank, millis(now), rec.JobID, rec.CandidateID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress for candidate %s on job %s: %w", rec.CandidateID, rec.JobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("progress for candidate %s on job %s changed since version %d: %w",
			rec.CandidateID, rec.JobID, rec.Version, store.ErrConflict)
	}
	rec.Version++
	rec.UpdatedAt = fromMillis(millis(now))
	return nil
}

func (s *StoreImpl) queryProgress(ctx context.Context, query string, args ...any) ([]*models.ProgressRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func scanProgress(row rowScanner, rec *models.ProgressRecord) error {
	var roundsJSON string
	var createdAt, updatedAt int64
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
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return err
	}
	rec.Rounds = nil
	if err := json.Unmarshal([]byte(roundsJSON), &rec.Rounds); err != nil {
		return fmt.Errorf("failed to decode rounds: %w", err)
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return nil
}

var _ store.ProgressStore = (*StoreImpl)(nil)
