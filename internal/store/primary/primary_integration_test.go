//go:build integration

package primary

import (
	"context"
	"os"
	"testing"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: STAGEHAND_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/store/primary/
func newIntegrationStore(t *testing.T) *StoreImpl {
	t.Helper()
	dsn := os.Getenv("STAGEHAND_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STAGEHAND_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPrimaryStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func createTestJob(t *testing.T, s *StoreImpl, deadline *time.Time) *models.Job {
	t.Helper()
	job := &models.Job{
		Title:  "Backend Engineer",
		Status: models.JobStatusActive,
		TopN:   2,
		Pipeline: []models.PipelineStage{
			{Order: 1, StageKind: models.StageKindAptitude, ThresholdScore: models.Ptr(60.0), DaysAfterPrev: models.Ptr(2)},
			{Order: 2, StageKind: models.StageKindCoding, ThresholdScore: models.Ptr(70.0), DaysAfterPrev: models.Ptr(3)},
		},
		TotalRounds:        2,
		SubmissionDeadline: deadline,
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func containsJob(jobs []*models.Job, id uuid.UUID) bool {
	for _, j := range jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

func TestPostgres_JobRoundTripAndLatch(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)
	job := createTestJob(t, s, &past)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.Pipeline, 2)
	assert.Equal(t, 70.0, got.Pipeline[1].Threshold())
	assert.Equal(t, 3, got.Pipeline[1].Gap())
	assert.ErrorIs(t, s.CreateJob(ctx, job), store.ErrDuplicate)

	due, err := s.ListJobsDueForReaping(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, containsJob(due, job.ID))

	set, err := s.MarkAutoRejectionDone(ctx, job.ID, true)
	require.NoError(t, err)
	assert.True(t, set)
	set, err = s.MarkAutoRejectionDone(ctx, job.ID, true)
	require.NoError(t, err)
	assert.False(t, set)

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoRejectionDone)
	assert.Equal(t, models.JobStatusClosed, got.Status)

	due, err = s.ListJobsDueForReaping(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, containsJob(due, job.ID))
}

func TestPostgres_ProgressUpsertFilterAndCompareAndSet(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	job := createTestJob(t, s, nil)

	rec := &models.ProgressRecord{
		JobID:       job.ID,
		CandidateID: uuid.New(),
		Rounds:      models.NewRoundSkeleton(job),
		Status:      models.ProgressStatusPending,
	}
	require.NoError(t, s.UpsertProgress(ctx, rec))
	assert.EqualValues(t, 1, rec.Version)

	pending, err := s.ListProgressByRoundStatus(ctx, job.ID, 1, models.RoundStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	stale := *rec
	require.NoError(t, rec.CompleteRound(1, 90, 60))
	require.NoError(t, s.UpdateProgress(ctx, rec))
	assert.ErrorIs(t, s.UpdateProgress(ctx, &stale), store.ErrConflict)

	completed, err := s.ListProgressByRoundStatus(ctx, job.ID, 1, models.RoundStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
	pending, err = s.ListProgressByRoundStatus(ctx, job.ID, 1, models.RoundStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	refresh := &models.ProgressRecord{
		JobID:         job.ID,
		CandidateID:   rec.CandidateID,
		CandidateName: "ada",
		Rounds:        models.NewRoundSkeleton(job),
		Status:        models.ProgressStatusPending,
		Rank:          models.Ptr(1),
	}
	require.NoError(t, s.UpsertProgress(ctx, refresh))
	assert.Equal(t, models.RoundStatusCompleted, refresh.Rounds[0].Status, "stored rounds win")
	assert.Equal(t, "ada", refresh.CandidateName)
	assert.EqualValues(t, 3, refresh.Version)
}

func TestPostgres_ScreeningConstraints(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	job := createTestJob(t, s, nil)

	sc := &models.Screening{JobID: job.ID, CandidateID: uuid.New(), Status: models.ScreeningStatusScreened, Score: models.Ptr(77.0)}
	require.NoError(t, s.CreateScreening(ctx, sc))
	dup := *sc
	assert.ErrorIs(t, s.CreateScreening(ctx, &dup), store.ErrDuplicate)
	orphan := &models.Screening{JobID: uuid.New(), CandidateID: uuid.New(), Status: models.ScreeningStatusPending}
	assert.ErrorIs(t, s.CreateScreening(ctx, orphan), store.ErrForeignKeyViolation)

	require.NoError(t, s.DeleteScreening(ctx, job.ID, sc.CandidateID))
	_, err := s.GetScreening(ctx, job.ID, sc.CandidateID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
