package pipeline

import (
	"context"
	"testing"
	"time"

	"stagehand/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageDates(stages []models.PipelineStage) []time.Time {
	out := make([]time.Time, len(stages))
	for i, s := range stages {
		if s.ScheduledDate != nil {
			out[i] = s.ScheduledDate.UTC()
		}
	}
	return out
}

func TestComputeSchedule(t *testing.T) {
	stages := []models.PipelineStage{
		{Order: 3, StageKind: models.StageKindHRInterview, DaysAfterPrev: models.Ptr(1)},
		{Order: 1, StageKind: models.StageKindAptitude, DaysAfterPrev: models.Ptr(2)},
		{Order: 2, StageKind: models.StageKindCoding, DaysAfterPrev: models.Ptr(4)},
	}
	anchor := time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

	got := ComputeSchedule(stages, anchor, time.UTC, 9)

	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Order, got[1].Order, got[2].Order})
	assert.Equal(t, []time.Time{march(11, 9), march(13, 9), march(17, 9)}, stageDates(got))
	for _, s := range stages {
		assert.Nil(t, s.ScheduledDate, "input must not be modified")
	}
}

func TestComputeSchedule_UsesLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on the 10th is already the 11th in IST.
	anchor := time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC)

	got := ComputeSchedule([]models.PipelineStage{{Order: 1, DaysAfterPrev: models.Ptr(3)}}, anchor, ist, 10)

	want := time.Date(2025, time.March, 12, 10, 0, 0, 0, ist)
	assert.True(t, want.Equal(*got[0].ScheduledDate), "got %s", got[0].ScheduledDate)
}

func TestScheduler_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)
	anchor := march(10, 15)

	first, err := f.scheduler.Schedule(ctx, job.ID, &anchor)
	require.NoError(t, err)
	second, err := f.scheduler.Schedule(ctx, job.ID, &anchor)
	require.NoError(t, err)

	assert.Equal(t, stageDates(first.Pipeline), stageDates(second.Pipeline))

	stored := f.job(t, job.ID)
	require.Len(t, stored.Pipeline, 3, "stages are overwritten, not appended")
	assert.Equal(t, []time.Time{march(11, 9), march(13, 9), march(16, 9)}, stageDates(stored.Pipeline))
	assert.True(t, stored.SchedulingDone)
	require.NotNil(t, stored.SchedulingStartDate)
	assert.True(t, stored.SchedulingStartDate.Equal(march(11, 9)))
	assert.Equal(t, 3, stored.TotalRounds)
}

func TestScheduler_DefaultAnchors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deadline := march(20, 18)
	withDeadline := f.createJob(t, func(j *models.Job) { j.SubmissionDeadline = &deadline })
	scheduled, err := f.scheduler.Schedule(ctx, withDeadline.ID, nil)
	require.NoError(t, err)
	assert.True(t, scheduled.Pipeline[0].ScheduledDate.Equal(march(21, 9)))

	noDeadline := f.createJob(t, nil)
	scheduled, err = f.scheduler.Schedule(ctx, noDeadline.ID, nil)
	require.NoError(t, err)
	assert.True(t, scheduled.Pipeline[0].ScheduledDate.Equal(march(11, 9)), "falls back to the clock")
}

func TestScheduler_EmptyPipeline(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, func(j *models.Job) {
		j.Pipeline = nil
		j.TotalRounds = 3
	})

	_, err := f.scheduler.Schedule(context.Background(), job.ID, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.False(t, f.job(t, job.ID).SchedulingDone)
}

func TestScheduler_UnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler.Schedule(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScheduler_PropagatesDatesToProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, nil)
	rec := f.seedProgress(t, job, "ada", func(r *models.ProgressRecord) {
		require.NoError(t, r.CompleteRound(1, 82, 60))
	})
	done := f.seedProgress(t, job, "bob", func(r *models.ProgressRecord) {
		r.EliminateAfter(0)
	})

	anchor := march(10, 8)
	_, err := f.scheduler.Schedule(ctx, job.ID, &anchor)
	require.NoError(t, err)

	got := f.progress(t, job.ID, rec.CandidateID)
	require.Len(t, got.Rounds, 3)
	for i, want := range []time.Time{march(11, 9), march(13, 9), march(16, 9)} {
		require.NotNil(t, got.Rounds[i].ScheduledDate)
		assert.True(t, got.Rounds[i].ScheduledDate.Equal(want), "round %d", i+1)
	}
	assert.Equal(t, models.RoundStatusCompleted, got.Rounds[0].Status)
	require.NotNil(t, got.Rounds[0].Score)
	assert.Equal(t, 82.0, *got.Rounds[0].Score)
	assert.Equal(t, models.RoundStatusPending, got.Rounds[1].Status)

	untouched := f.progress(t, job.ID, done.CandidateID)
	assert.Nil(t, untouched.Rounds[0].ScheduledDate, "completed records are immutable")
}

func TestScheduler_NormalizesOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, func(j *models.Job) {
		j.Pipeline[0].Order = 10
		j.Pipeline[1].Order = 20
		j.Pipeline[2].Order = 30
	})

	scheduled, err := f.scheduler.Schedule(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{scheduled.Pipeline[0].Order, scheduled.Pipeline[1].Order, scheduled.Pipeline[2].Order})
	assert.Equal(t, models.StageKindAptitude, scheduled.Pipeline[0].StageKind)
}

func TestScheduler_RefusesRenumberWithProgress(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, func(j *models.Job) {
		j.Pipeline[2].Order = 7
	})
	f.seedProgress(t, job, "ada", nil)

	_, err := f.scheduler.Schedule(context.Background(), job.ID, nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}
