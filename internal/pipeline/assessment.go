package pipeline

import (
	"context"
	"errors"
	"fmt"

	"stagehand/internal/models"
	"stagehand/internal/notify"
	"stagehand/internal/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// AssessmentResult reports what a manual assessment-link send did.
type AssessmentResult struct {
	RoundNumber  int                `json:"round_number"`
	RoundStatus  models.RoundStatus `json:"round_status"`
	Transitioned bool               `json:"transitioned"`
	Notified     bool               `json:"notified"`
}

// SendAssessmentLink opens a pending round exactly as the advancer would and
// sends the link. For a round already in progress it only re-sends the link.
// A completed or skipped round is left alone and nothing is sent.
func (s *Service) SendAssessmentLink(ctx context.Context, jobID, candidateID uuid.UUID, roundNumber int) (*AssessmentResult, error) {
	if roundNumber < 1 {
		return nil, fmt.Errorf("%w: round number is required", models.ErrValidation)
	}
	job, err := loadJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetProgress(ctx, jobID, candidateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no progress for candidate %s on job %s", models.ErrNotFound, candidateID, jobID)
		}
		return nil, err
	}
	if _, ok := rec.Round(roundNumber); !ok {
		return nil, fmt.Errorf("%w: round %d does not exist for candidate %s", models.ErrValidation, roundNumber, candidateID)
	}

	logger := log.WithFields(log.Fields{"job_id": jobID, "candidate_id": candidateID, "round": roundNumber})
	res := &AssessmentResult{RoundNumber: roundNumber}

	transitioned, err := mutateProgress(ctx, s.store, rec, func(r *models.ProgressRecord) (bool, error) {
		round, ok := r.Round(roundNumber)
		if !ok || round.Status != models.RoundStatusPending {
			return false, nil
		}
		return true, r.StartRound(roundNumber)
	})
	if err != nil && !errors.Is(err, models.ErrConcurrencyAnomaly) {
		return nil, err
	}
	res.Transitioned = transitioned

	if round, ok := rec.Round(roundNumber); ok {
		res.RoundStatus = round.Status
	}
	if res.RoundStatus != models.RoundStatusInProgress {
		logger.WithField("status", res.RoundStatus).Info("round is not open, assessment link not sent")
		return res, nil
	}

	res.Notified = notify.Deliver(ctx, s.notifier, s.opts.NotifyTimeout, rec.CandidateEmail, notify.KindAssessmentLink,
		assessmentData(job, rec, roundNumber), log.Fields{"job_id": jobID, "candidate_id": candidateID, "round": roundNumber})
	logger.WithFields(log.Fields{"transitioned": res.Transitioned, "notified": res.Notified}).Info("assessment link processed")
	return res, nil
}
