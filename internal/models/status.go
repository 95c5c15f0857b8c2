package models

/*
Status and kind constants for jobs, screenings, progress records and rounds.
Centralizing these avoids magic strings in the stores and the pipeline.
*/

// JobStatus is the lifecycle state of a job opening.
type JobStatus string

const (
	JobStatusDraft  JobStatus = "draft"
	JobStatusActive JobStatus = "active"
	JobStatusClosed JobStatus = "closed"
)

// RoundStatus is the state of one candidate round.
// The lifecycle is pending -> in_progress -> completed, with skipped as a terminal override.
type RoundStatus string

const (
	RoundStatusPending    RoundStatus = "pending"
	RoundStatusInProgress RoundStatus = "in_progress"
	RoundStatusCompleted  RoundStatus = "completed"
	RoundStatusSkipped    RoundStatus = "skipped"
)

// Terminal reports whether the round can no longer change under normal transitions.
func (s RoundStatus) Terminal() bool {
	return s == RoundStatusCompleted || s == RoundStatusSkipped
}

// ProgressStatus is the derived overall state of a progress record.
type ProgressStatus string

const (
	ProgressStatusPending    ProgressStatus = "pending"
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusCompleted  ProgressStatus = "completed"
)

// ScreeningStatus is owned by the screening collaborator; the reaper and the
// elimination engine only transition it.
type ScreeningStatus string

const (
	ScreeningStatusPending     ScreeningStatus = "pending"
	ScreeningStatusScreened    ScreeningStatus = "screened"
	ScreeningStatusShortlisted ScreeningStatus = "shortlisted"
	ScreeningStatusRejected    ScreeningStatus = "rejected"
)

// StageKind identifies what a pipeline stage evaluates.
type StageKind string

const (
	StageKindAptitude           StageKind = "aptitude"
	StageKindCoding             StageKind = "coding"
	StageKindTechnicalInterview StageKind = "technical_interview"
	StageKindHRInterview        StageKind = "hr_interview"
	StageKindVoiceInterview     StageKind = "voice_interview"
	StageKindAssignment         StageKind = "assignment"
	StageKindCustom             StageKind = "custom"
)

// DisplayName returns a human readable stage label used for round names.
func (k StageKind) DisplayName() string {
	switch k {
	case StageKindAptitude:
		return "Aptitude Test"
	case StageKindCoding:
		return "Coding Challenge"
	case StageKindTechnicalInterview:
		return "Technical Interview"
	case StageKindHRInterview:
		return "HR Interview"
	case StageKindVoiceInterview:
		return "Voice Interview"
	case StageKindAssignment:
		return "Assignment"
	default:
		return "Round"
	}
}

// Defaults applied when a job or stage leaves a value unset.
const (
	DefaultThresholdScore = 60.0
	DefaultDaysAfterPrev  = 3
	DefaultTopN           = 5
)
