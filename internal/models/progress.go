package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProgressRound is the per-candidate instance of a pipeline stage.
type ProgressRound struct {
	RoundNumber   int         `json:"round_number"`
	RoundName     string      `json:"round_name"`
	StageKind     StageKind   `json:"stage_kind"`
	ScheduledDate *time.Time  `json:"scheduled_date,omitempty"`
	Score         *float64    `json:"score,omitempty"`
	Passed        *bool       `json:"passed,omitempty"`
	Status        RoundStatus `json:"status"`
}

// ProgressRecord tracks one candidate through one job's pipeline.
// (CandidateID, JobID) is unique.
type ProgressRecord struct {
	ID             int64           `db:"id" json:"id"`
	JobID          uuid.UUID       `db:"job_id" json:"job_id"`
	CandidateID    uuid.UUID       `db:"candidate_id" json:"candidate_id"`
	CandidateName  string          `db:"candidate_name" json:"candidate_name"`
	CandidateEmail string          `db:"candidate_email" json:"candidate_email"`
	CandidateScore float64         `db:"candidate_score" json:"candidate_score"`
	Rounds         []ProgressRound `db:"rounds" json:"rounds"`
	Status         ProgressStatus  `db:"status" json:"status"`
	Rank           *int            `db:"rank" json:"rank,omitempty"`
	Version        int64           `db:"version" json:"version"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// NewRoundSkeleton builds the zeroed rounds for a job: one pending round per
// stage, or totalRounds generic rounds when the job has no pipeline.
func NewRoundSkeleton(job *Job) []ProgressRound {
	n := job.RoundCount()
	rounds := make([]ProgressRound, n)
	for i := range rounds {
		rounds[i] = ProgressRound{
			RoundNumber: i + 1,
			RoundName:   fmt.Sprintf("Round %d", i+1),
			StageKind:   StageKindCustom,
			Status:      RoundStatusPending,
		}
		if stage, ok := job.Stage(i + 1); ok {
			rounds[i].RoundName = stage.RoundName()
			rounds[i].StageKind = stage.StageKind
			rounds[i].ScheduledDate = copyTime(stage.ScheduledDate)
		}
	}
	return rounds
}

// Round returns a pointer to the round with the given number.
func (p *ProgressRecord) Round(number int) (*ProgressRound, bool) {
	for i := range p.Rounds {
		if p.Rounds[i].RoundNumber == number {
			return &p.Rounds[i], true
		}
	}
	return nil, false
}

// StartRound moves a pending round to in_progress.
// Any other starting state is reported as ErrConcurrencyAnomaly and nothing changes.
func (p *ProgressRecord) StartRound(number int) error {
	if p.Status == ProgressStatusCompleted {
		return fmt.Errorf("%w: record for candidate %s is completed", ErrConcurrencyAnomaly, p.CandidateID)
	}
	r, ok := p.Round(number)
	if !ok {
		return fmt.Errorf("%w: round %d does not exist", ErrValidation, number)
	}
	if r.Status != RoundStatusPending {
		return fmt.Errorf("%w: round %d is %s, not %s", ErrConcurrencyAnomaly, number, r.Status, RoundStatusPending)
	}
	r.Status = RoundStatusInProgress
	if p.Status == ProgressStatusPending {
		p.Status = ProgressStatusInProgress
	}
	p.deriveStatus()
	return nil
}

// CompleteRound records a score for a pending or in-progress round.
// Completed and skipped rounds are never rewritten.
func (p *ProgressRecord) CompleteRound(number int, score, threshold float64) error {
	if p.Status == ProgressStatusCompleted {
		return fmt.Errorf("%w: record for candidate %s is completed", ErrConcurrencyAnomaly, p.CandidateID)
	}
	r, ok := p.Round(number)
	if !ok {
		return fmt.Errorf("%w: round %d does not exist", ErrValidation, number)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("%w: round %d is already %s", ErrConcurrencyAnomaly, number, r.Status)
	}
	p.foldScore(score)
	passed := score >= threshold
	r.Score = &score
	r.Passed = &passed
	r.Status = RoundStatusCompleted
	if p.Status == ProgressStatusPending {
		p.Status = ProgressStatusInProgress
	}
	p.deriveStatus()
	return nil
}

// EliminateAfter skips every round after the given one and completes the record.
// This is the only transition allowed to overwrite completed or skipped rounds.
// It reports whether anything changed.
func (p *ProgressRecord) EliminateAfter(number int) bool {
	changed := false
	failed := false
	for i := range p.Rounds {
		r := &p.Rounds[i]
		if r.RoundNumber <= number {
			continue
		}
		if r.Status != RoundStatusSkipped || r.Passed == nil || *r.Passed {
			changed = true
		}
		r.Status = RoundStatusSkipped
		r.Passed = &failed
	}
	if p.Status != ProgressStatusCompleted {
		changed = true
	}
	p.Status = ProgressStatusCompleted
	return changed
}

// ApplySchedule copies stage dates onto rounds matched by order == round number.
// Status and score are left untouched.
func (p *ProgressRecord) ApplySchedule(stages []PipelineStage) {
	for _, s := range stages {
		r, ok := p.Round(s.Order)
		if !ok {
			continue
		}
		r.ScheduledDate = copyTime(s.ScheduledDate)
		r.RoundName = s.RoundName()
		r.StageKind = s.StageKind
	}
}

// foldScore folds a new round score into the running composite. The composite
// starts as the screening score and is the mean of it and every completed round score.
func (p *ProgressRecord) foldScore(score float64) {
	n := 1
	for _, r := range p.Rounds {
		if r.Status == RoundStatusCompleted && r.Score != nil {
			n++
		}
	}
	p.CandidateScore = (p.CandidateScore*float64(n) + score) / float64(n+1)
}

// deriveStatus only ever moves the record forward.
func (p *ProgressRecord) deriveStatus() {
	if len(p.Rounds) == 0 {
		return
	}
	for _, r := range p.Rounds {
		if !r.Status.Terminal() {
			return
		}
	}
	p.Status = ProgressStatusCompleted
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
