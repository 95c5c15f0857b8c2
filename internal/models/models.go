package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// PipelineStage is one ordered evaluation step of a job.
type PipelineStage struct {
	Order          int        `db:"stage_order" json:"order" validate:"gte=1"`
	StageKind      StageKind  `db:"stage_kind" json:"stage_kind" validate:"required"`
	Name           string     `db:"name" json:"name,omitempty"`
	ThresholdScore *float64   `db:"threshold_score" json:"threshold_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	DaysAfterPrev  *int       `db:"days_after_prev" json:"days_after_prev,omitempty" validate:"omitempty,gte=0"`
	ScheduledDate  *time.Time `db:"scheduled_date" json:"scheduled_date,omitempty"`
}

// RoundName is the stage name, falling back to the kind's display name.
func (s PipelineStage) RoundName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.StageKind.DisplayName()
}

// Threshold is the pass score of the stage. An unset threshold means DefaultThresholdScore.
func (s PipelineStage) Threshold() float64 {
	if s.ThresholdScore == nil {
		return DefaultThresholdScore
	}
	return *s.ThresholdScore
}

// Gap is the number of days between this stage and the next.
func (s PipelineStage) Gap() int {
	if s.DaysAfterPrev == nil {
		return DefaultDaysAfterPrev
	}
	return *s.DaysAfterPrev
}

type Job struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	Title               string          `db:"title" json:"title" validate:"required"`
	Status              JobStatus       `db:"status" json:"status" validate:"oneof=draft active closed"`
	Pipeline            []PipelineStage `db:"-" json:"pipeline" validate:"dive"`
	TotalRounds         int             `db:"total_rounds" json:"total_rounds" validate:"gte=0"`
	SubmissionDeadline  *time.Time      `db:"submission_deadline" json:"submission_deadline,omitempty"`
	TopN                int             `db:"top_n" json:"top_n" validate:"gte=0"`
	SchedulingDone      bool            `db:"scheduling_done" json:"scheduling_done"`
	SchedulingStartDate *time.Time      `db:"scheduling_start_date" json:"scheduling_start_date,omitempty"`
	AutoRejectionDone   bool            `db:"auto_rejection_done" json:"auto_rejection_done"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// RoundCount is the number of rounds every progress record of the job carries.
// It is the pipeline length unless the pipeline is empty.
func (j *Job) RoundCount() int {
	if len(j.Pipeline) > 0 {
		return len(j.Pipeline)
	}
	return j.TotalRounds
}

// Stage returns the pipeline stage with the given order.
func (j *Job) Stage(order int) (PipelineStage, bool) {
	for _, s := range j.Pipeline {
		if s.Order == order {
			return s, true
		}
	}
	return PipelineStage{}, false
}

// ThresholdFor returns the pass threshold of a round, or the default when the stage is absent.
func (j *Job) ThresholdFor(order int) float64 {
	if s, ok := j.Stage(order); ok {
		return s.Threshold()
	}
	return DefaultThresholdScore
}

// SortedPipeline returns a copy of the pipeline ordered by Order.
func (j *Job) SortedPipeline() []PipelineStage {
	stages := make([]PipelineStage, len(j.Pipeline))
	copy(stages, j.Pipeline)
	sort.SliceStable(stages, func(a, b int) bool { return stages[a].Order < stages[b].Order })
	return stages
}

// ApplyDefaults fills unset job and stage values.
func (j *Job) ApplyDefaults() {
	if j.Status == "" {
		j.Status = JobStatusDraft
	}
	if j.TopN == 0 {
		j.TopN = DefaultTopN
	}
	for i := range j.Pipeline {
		if j.Pipeline[i].Order == 0 {
			j.Pipeline[i].Order = i + 1
		}
		if j.Pipeline[i].StageKind == "" {
			j.Pipeline[i].StageKind = StageKindCustom
		}
		if j.Pipeline[i].ThresholdScore == nil {
			j.Pipeline[i].ThresholdScore = Ptr(DefaultThresholdScore)
		}
		if j.Pipeline[i].DaysAfterPrev == nil {
			j.Pipeline[i].DaysAfterPrev = Ptr(DefaultDaysAfterPrev)
		}
	}
	if len(j.Pipeline) > 0 {
		j.TotalRounds = len(j.Pipeline)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Screening is a candidate's entry in the screening store for one job.
type Screening struct {
	ID             int64           `db:"id" json:"id"`
	JobID          uuid.UUID       `db:"job_id" json:"job_id"`
	CandidateID    uuid.UUID       `db:"candidate_id" json:"candidate_id"`
	CandidateName  string          `db:"candidate_name" json:"candidate_name"`
	CandidateEmail string          `db:"candidate_email" json:"candidate_email"`
	Status         ScreeningStatus `db:"status" json:"status"`
	Score          *float64        `db:"score" json:"score,omitempty"`
	ShortlistRank  *int            `db:"shortlist_rank" json:"shortlist_rank,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// BestScore is the ranking score; unscored entries rank last.
func (s *Screening) BestScore() float64 {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}
