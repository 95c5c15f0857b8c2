package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/notify"
	"stagehand/internal/store"
	"stagehand/internal/store/sqlite"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	To   string
	Kind notify.Kind
	Data map[string]any
}

// recordingNotifier keeps every message; with fail set it still records but
// returns an error.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, to string, kind notify.Kind, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{To: to, Kind: kind, Data: data})
	if n.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (n *recordingNotifier) count(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) recipients(kind notify.Kind) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		if m.Kind == kind {
			out = append(out, m.To)
		}
	}
	return out
}

type fixture struct {
	store      store.Store
	clock      clockwork.FakeClock
	notifier   *recordingNotifier
	scheduler  *Scheduler
	advancer   *Advancer
	eliminator *Eliminator
	reaper     *Reaper
	service    *Service
}

func newTestStore(t *testing.T) *sqlite.StoreImpl {
	t.Helper()
	s, err := sqlite.NewStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, newTestStore(t))
}

func newFixtureWithStore(t *testing.T, s store.Store) *fixture {
	t.Helper()
	f := &fixture{
		store:    s,
		clock:    clockwork.NewFakeClockAt(testNow),
		notifier: &recordingNotifier{},
	}
	opts := Options{Location: time.UTC, StartHour: 9, Parallelism: 4, NotifyTimeout: time.Second}
	f.scheduler = NewScheduler(s, f.clock, opts)
	f.advancer = NewAdvancer(s, f.notifier, f.clock, opts)
	f.eliminator = NewEliminator(s, f.notifier, opts)
	f.reaper = NewReaper(s, f.scheduler, f.notifier, f.clock, opts)
	f.service = NewService(s, f.scheduler, f.eliminator, f.notifier, nil, opts)
	return f
}

// threeStagePipeline: aptitude, coding, technical interview with gaps of 2 and 3 days.
func threeStagePipeline() []models.PipelineStage {
	return []models.PipelineStage{
		{Order: 1, StageKind: models.StageKindAptitude, ThresholdScore: models.Ptr(60.0), DaysAfterPrev: models.Ptr(2)},
		{Order: 2, StageKind: models.StageKindCoding, ThresholdScore: models.Ptr(60.0), DaysAfterPrev: models.Ptr(3)},
		{Order: 3, StageKind: models.StageKindTechnicalInterview, ThresholdScore: models.Ptr(70.0), DaysAfterPrev: models.Ptr(3)},
	}
}

func (f *fixture) createJob(t *testing.T, mutate func(j *models.Job)) *models.Job {
	t.Helper()
	job := &models.Job{
		Title:    "Backend Engineer",
		Status:   models.JobStatusActive,
		Pipeline: threeStagePipeline(),
	}
	if mutate != nil {
		mutate(job)
	}
	created, err := f.service.CreateJob(context.Background(), job)
	require.NoError(t, err)
	return created
}

func (f *fixture) addScreening(t *testing.T, jobID uuid.UUID, name string, score *float64) *models.Screening {
	t.Helper()
	sc, err := f.service.AddScreening(context.Background(), &models.Screening{
		JobID:          jobID,
		CandidateName:  name,
		CandidateEmail: name + "@example.test",
		Score:          score,
	})
	require.NoError(t, err)
	return sc
}

// seedProgress stores a fresh record for a new candidate; mutate can complete
// rounds before the insert.
func (f *fixture) seedProgress(t *testing.T, job *models.Job, name string, mutate func(r *models.ProgressRecord)) *models.ProgressRecord {
	t.Helper()
	rec := &models.ProgressRecord{
		JobID:          job.ID,
		CandidateID:    uuid.New(),
		CandidateName:  name,
		CandidateEmail: name + "@example.test",
		Rounds:         models.NewRoundSkeleton(job),
		Status:         models.ProgressStatusPending,
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, f.store.UpsertProgress(context.Background(), rec))
	return rec
}

func (f *fixture) progress(t *testing.T, jobID, candidateID uuid.UUID) *models.ProgressRecord {
	t.Helper()
	rec, err := f.store.GetProgress(context.Background(), jobID, candidateID)
	require.NoError(t, err)
	return rec
}

func (f *fixture) job(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func scorePtr(v float64) *float64 { return &v }

func march(day, hour int) time.Time {
	return time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
}
