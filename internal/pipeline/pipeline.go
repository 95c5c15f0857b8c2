// Package pipeline holds the hiring pipeline state machine: stage scheduling,
// the advancement and deadline pollers, and round elimination.
//
// The pollers take no locks. Every transition queries only records that are in
// the exact state being left, and progress writes are compare-and-set on the
// record version, so repeated or overlapping ticks are safe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/store"

	"github.com/google/uuid"
)

// Options tune scheduling and fan-out. Zero values fall back to defaults.
type Options struct {
	Location      *time.Location
	StartHour     int
	Parallelism   int
	NotifyTimeout time.Duration
}

const (
	defaultStartHour     = 9
	defaultParallelism   = 8
	defaultNotifyTimeout = 10 * time.Second

	maxCASAttempts = 3
)

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.StartHour < 0 || o.StartHour > 23 {
		o.StartHour = defaultStartHour
	}
	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallelism
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = defaultNotifyTimeout
	}
	return o
}

// DefaultOptions schedules stages at 09:00 UTC.
func DefaultOptions() Options {
	return Options{StartHour: defaultStartHour}.withDefaults()
}

func loadJob(ctx context.Context, js store.JobStore, id uuid.UUID) (*models.Job, error) {
	job, err := js.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return job, nil
}

// mutateProgress applies fn to rec and writes it with compare-and-set. When the
// write loses, the record is re-read and fn runs again on the fresh copy.
// fn reports false when nothing needs writing.
func mutateProgress(ctx context.Context, ps store.ProgressStore, rec *models.ProgressRecord, fn func(*models.ProgressRecord) (bool, error)) (bool, error) {
	for attempt := 1; ; attempt++ {
		changed, err := fn(rec)
		if err != nil || !changed {
			return false, err
		}
		err = ps.UpdateProgress(ctx, rec)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= maxCASAttempts {
			return false, err
		}
		fresh, err := ps.GetProgress(ctx, rec.JobID, rec.CandidateID)
		if err != nil {
			return false, err
		}
		*rec = *fresh
	}
}

func intPtr(v int) *int { return &v }
