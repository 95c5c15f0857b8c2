package pipeline

import (
	"context"
	"testing"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scheduledJob creates an active job whose first stage fell due on March 9th
// at 09:00; the second is due on the 11th and the third on the 14th.
func scheduledJob(t *testing.T, f *fixture) *models.Job {
	t.Helper()
	job := f.createJob(t, nil)
	anchor := march(8, 10)
	scheduled, err := f.scheduler.Schedule(context.Background(), job.ID, &anchor)
	require.NoError(t, err)
	return scheduled
}

func TestAdvancer_NoDoubleAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := scheduledJob(t, f)
	ada := f.seedProgress(t, job, "ada", nil)
	bob := f.seedProgress(t, job, "bob", nil)

	res, err := f.advancer.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Jobs)
	assert.Equal(t, 2, res.Advanced)
	assert.Equal(t, 2, res.Notified)

	for _, seeded := range []*models.ProgressRecord{ada, bob} {
		rec := f.progress(t, job.ID, seeded.CandidateID)
		assert.Equal(t, models.RoundStatusInProgress, rec.Rounds[0].Status)
		assert.Equal(t, models.RoundStatusPending, rec.Rounds[1].Status, "stage 2 is not due yet")
		assert.Equal(t, models.ProgressStatusInProgress, rec.Status)
	}

	res, err = f.advancer.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Advanced)
	assert.Equal(t, 2, f.notifier.count(notify.KindAssessmentLink))
	assert.ElementsMatch(t, []string{"ada@example.test", "bob@example.test"}, f.notifier.recipients(notify.KindAssessmentLink))
}

func TestAdvancer_LaterStageFallsDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := scheduledJob(t, f)
	ada := f.seedProgress(t, job, "ada", nil)

	_, err := f.advancer.Tick(ctx)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	res, err := f.advancer.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)

	rec := f.progress(t, job.ID, ada.CandidateID)
	assert.Equal(t, models.RoundStatusInProgress, rec.Rounds[1].Status)
	assert.Equal(t, models.RoundStatusPending, rec.Rounds[2].Status)
}

func TestAdvancer_NeverRegressesTerminalRounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := scheduledJob(t, f)
	graded := f.seedProgress(t, job, "ada", func(r *models.ProgressRecord) {
		require.NoError(t, r.CompleteRound(1, 75, 60))
	})
	eliminated := f.seedProgress(t, job, "bob", func(r *models.ProgressRecord) {
		require.NoError(t, r.CompleteRound(1, 30, 60))
		r.EliminateAfter(1)
	})

	f.clock.Advance(72 * time.Hour)
	res, err := f.advancer.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced, "only ada's second round opens")

	rec := f.progress(t, job.ID, graded.CandidateID)
	assert.Equal(t, models.RoundStatusCompleted, rec.Rounds[0].Status)
	assert.Equal(t, models.RoundStatusInProgress, rec.Rounds[1].Status)

	out := f.progress(t, job.ID, eliminated.CandidateID)
	assert.Equal(t, models.RoundStatusSkipped, out.Rounds[1].Status)
	assert.Equal(t, models.RoundStatusSkipped, out.Rounds[2].Status)
	assert.Equal(t, models.ProgressStatusCompleted, out.Status)
}

func TestAdvancer_NotifierFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	job := scheduledJob(t, f)
	ada := f.seedProgress(t, job, "ada", nil)

	res, err := f.advancer.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)
	assert.Zero(t, res.Notified)
	assert.Equal(t, models.RoundStatusInProgress, f.progress(t, job.ID, ada.CandidateID).Rounds[0].Status)
}

func TestAdvancer_SkipsInactiveAndUnscheduledJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.createJob(t, func(j *models.Job) { j.Status = models.JobStatusDraft })
	anchor := march(1, 9)
	_, err := f.scheduler.Schedule(ctx, draft.ID, &anchor)
	require.NoError(t, err)
	f.seedProgress(t, f.job(t, draft.ID), "ada", nil)

	unscheduled := f.createJob(t, nil)
	f.seedProgress(t, unscheduled, "bob", nil)

	res, err := f.advancer.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Jobs)
	assert.Zero(t, res.Advanced)
	assert.Zero(t, f.notifier.count(notify.KindAssessmentLink))
}
