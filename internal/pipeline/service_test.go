package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateJobDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.service.CreateJob(ctx, &models.Job{
		Title:    "Data Engineer",
		Pipeline: []models.PipelineStage{{StageKind: models.StageKindCoding, ThresholdScore: models.Ptr(60.0)}, {ThresholdScore: models.Ptr(50.0)}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, models.JobStatusDraft, job.Status)
	assert.Equal(t, models.DefaultTopN, job.TopN)
	assert.Equal(t, 2, job.TotalRounds)
	assert.Equal(t, 2, job.Pipeline[1].Order)
	assert.Equal(t, models.StageKindCustom, job.Pipeline[1].StageKind)
	assert.Equal(t, 50.0, job.Pipeline[1].Threshold())
	require.NotNil(t, job.Pipeline[1].DaysAfterPrev)
	assert.Equal(t, models.DefaultDaysAfterPrev, *job.Pipeline[1].DaysAfterPrev)

	_, err = f.service.CreateJob(ctx, &models.Job{
		Title:    "Bad threshold",
		Pipeline: []models.PipelineStage{{Order: 1, StageKind: models.StageKindCoding, ThresholdScore: models.Ptr(120.0)}},
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.CreateJob(ctx, &models.Job{
		Title: "Duplicate orders",
		Pipeline: []models.PipelineStage{
			{Order: 1, StageKind: models.StageKindCoding},
			{Order: 1, StageKind: models.StageKindAptitude},
		},
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.CreateJob(ctx, &models.Job{})
	assert.ErrorIs(t, err, models.ErrValidation, "title is required")
}

func TestService_StageDefaultsDriveScheduleAndElimination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, func(j *models.Job) {
		j.Pipeline = []models.PipelineStage{
			{Order: 1, StageKind: models.StageKindAptitude},
			{Order: 2, StageKind: models.StageKindCoding},
			{Order: 3, StageKind: models.StageKindHRInterview},
		}
	})
	for _, st := range job.Pipeline {
		require.NotNil(t, st.ThresholdScore)
		assert.Equal(t, models.DefaultThresholdScore, *st.ThresholdScore)
	}

	anchor := march(10, 15)
	scheduled, err := f.service.Schedule(ctx, job.ID, &anchor)
	require.NoError(t, err)
	require.Len(t, scheduled.Pipeline, 3)
	assert.Equal(t, march(11, 9), scheduled.Pipeline[0].ScheduledDate.UTC())
	assert.Equal(t, march(14, 9), scheduled.Pipeline[1].ScheduledDate.UTC())
	assert.Equal(t, march(17, 9), scheduled.Pipeline[2].ScheduledDate.UTC())

	sc := f.addScreening(t, job.ID, "ada", scorePtr(80))
	rec, err := f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 1, 40)
	require.NoError(t, err)
	assert.False(t, *rec.Rounds[0].Passed)
	assert.Equal(t, models.RoundStatusSkipped, rec.Rounds[1].Status)
	assert.Equal(t, models.RoundStatusSkipped, rec.Rounds[2].Status)
}

func TestService_AddScreening(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)

	scored := f.addScreening(t, job.ID, "ada", scorePtr(72))
	assert.Equal(t, models.ScreeningStatusScreened, scored.Status)
	unscored := f.addScreening(t, job.ID, "bob", nil)
	assert.Equal(t, models.ScreeningStatusPending, unscored.Status)

	_, err := f.service.AddScreening(ctx, &models.Screening{JobID: job.ID, CandidateID: scored.CandidateID})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.service.AddScreening(ctx, &models.Screening{JobID: uuid.New()})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.service.AddScreening(ctx, &models.Screening{JobID: job.ID, Score: scorePtr(101)})
	assert.ErrorIs(t, err, models.ErrValidation)

	list, err := f.service.ListScreenings(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_RecordRoundScoreCreatesRecordAndFoldsScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)
	sc := f.addScreening(t, job.ID, "ada", scorePtr(80))

	rec, err := f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 1, 70)
	require.NoError(t, err)
	assert.Equal(t, "ada", rec.CandidateName)
	assert.Equal(t, models.RoundStatusCompleted, rec.Rounds[0].Status)
	require.NotNil(t, rec.Rounds[0].Passed)
	assert.True(t, *rec.Rounds[0].Passed)
	assert.InDelta(t, 75.0, rec.CandidateScore, 1e-9)
	assert.Equal(t, models.ProgressStatusInProgress, rec.Status)

	rec, err = f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 2, 90)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, rec.CandidateScore, 1e-9)

	stored := f.progress(t, job.ID, sc.CandidateID)
	assert.InDelta(t, 80.0, stored.CandidateScore, 1e-9)
}

func TestService_RecordRoundScoreNeverRewritesCompletedRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)
	sc := f.addScreening(t, job.ID, "ada", scorePtr(80))

	_, err := f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 1, 70)
	require.NoError(t, err)
	_, err = f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 1, 95)
	assert.ErrorIs(t, err, models.ErrConcurrencyAnomaly)

	rec := f.progress(t, job.ID, sc.CandidateID)
	assert.Equal(t, 70.0, *rec.Rounds[0].Score)
}

func TestService_RecordRoundScoreFailingRunsEliminationInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)
	sc := f.addScreening(t, job.ID, "ada", scorePtr(80))

	rec, err := f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 1, 35)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressStatusCompleted, rec.Status)
	assert.Equal(t, models.RoundStatusSkipped, rec.Rounds[1].Status)
	assert.Equal(t, models.RoundStatusSkipped, rec.Rounds[2].Status)

	screening, err := f.store.GetScreening(ctx, job.ID, sc.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, models.ScreeningStatusRejected, screening.Status)
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []int
}

func (e *recordingEnqueuer) EnqueueElimination(_ context.Context, _ uuid.UUID, roundNumber int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, roundNumber)
	return nil
}

func TestService_RecordRoundScoreFailingEnqueuesElimination(t *testing.T) {
	f := newFixture(t)
	enq := &recordingEnqueuer{}
	f.service = NewService(f.store, f.scheduler, f.eliminator, f.notifier, enq, Options{})
	ctx := context.Background()
	job := f.createJob(t, nil)
	sc := f.addScreening(t, job.ID, "ada", scorePtr(80))

	rec, err := f.service.RecordRoundScore(ctx, job.ID, sc.CandidateID, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, enq.calls)
	assert.Equal(t, models.RoundStatusPending, rec.Rounds[2].Status, "elimination is left to the worker")
}

func TestService_RecordRoundScoreErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)

	_, err := f.service.RecordRoundScore(ctx, job.ID, uuid.New(), 1, 50)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.service.RecordRoundScore(ctx, job.ID, uuid.New(), 4, 50)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.RecordRoundScore(ctx, job.ID, uuid.New(), 1, -1)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.RecordRoundScore(ctx, uuid.New(), uuid.New(), 1, 50)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_SendAssessmentLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := scheduledJob(t, f)
	rec := f.seedProgress(t, job, "ada", func(r *models.ProgressRecord) {
		require.NoError(t, r.CompleteRound(1, 90, 60))
	})

	res, err := f.service.SendAssessmentLink(ctx, job.ID, rec.CandidateID, 2)
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.True(t, res.Notified)
	assert.Equal(t, models.RoundStatusInProgress, res.RoundStatus)
	assert.Equal(t, models.RoundStatusInProgress, f.progress(t, job.ID, rec.CandidateID).Rounds[1].Status)

	// A resend leaves the round alone.
	res, err = f.service.SendAssessmentLink(ctx, job.ID, rec.CandidateID, 2)
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.True(t, res.Notified)

	// Completed rounds are a no-op.
	res, err = f.service.SendAssessmentLink(ctx, job.ID, rec.CandidateID, 1)
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.False(t, res.Notified)
	assert.Equal(t, models.RoundStatusCompleted, res.RoundStatus)

	assert.Equal(t, 2, f.notifier.count(notify.KindAssessmentLink))

	// The daemon does not open the round a second time.
	f.clock.Advance(72 * time.Hour)
	tick, err := f.advancer.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, tick.Advanced)
}

func TestService_SendAssessmentLinkErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)
	rec := f.seedProgress(t, job, "ada", nil)

	_, err := f.service.SendAssessmentLink(ctx, job.ID, rec.CandidateID, 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.SendAssessmentLink(ctx, job.ID, rec.CandidateID, 9)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.SendAssessmentLink(ctx, job.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.service.SendAssessmentLink(ctx, uuid.New(), rec.CandidateID, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_PipelineProgressUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.PipelineProgress(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
