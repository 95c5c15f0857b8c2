package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task types handled by the worker.
const (
	// TypeAdvanceTick runs one pass of the stage advancer.
	TypeAdvanceTick = "pipeline:advance"
	// TypeReapTick runs one pass of the deadline reaper.
	TypeReapTick = "pipeline:reap"
	// TypeEliminate rejects candidates below a round's threshold.
	TypeEliminate = "pipeline:eliminate"
)

// Queue names. The defaults in config weight them critical:6, default:3.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

type EliminatePayload struct {
	JobID       uuid.UUID `json:"job_id"`
	RoundNumber int       `json:"round_number"`
}

// NewEliminateTask builds an elimination task. The task ID is derived from the job
// and round, so a second enqueue while the first is still pending is rejected by asynq.
func NewEliminateTask(jobID uuid.UUID, roundNumber int) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(EliminatePayload{JobID: jobID, RoundNumber: roundNumber})
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.TaskID(fmt.Sprintf("eliminate:%s:%d", jobID, roundNumber)),
		asynq.MaxRetry(5),
	}
	return asynq.NewTask(TypeEliminate, b), opts, nil
}

func ParseEliminatePayload(t *asynq.Task) (EliminatePayload, error) {
	var p EliminatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if p.JobID == uuid.Nil || p.RoundNumber < 1 {
		return p, fmt.Errorf("invalid %s payload: job %s round %d", t.Type(), p.JobID, p.RoundNumber)
	}
	return p, nil
}

// NewAdvanceTickTask and NewReapTickTask carry no payload; the periodic scheduler
// registers them on the configured intervals.
func NewAdvanceTickTask() *asynq.Task { return asynq.NewTask(TypeAdvanceTick, nil) }

func NewReapTickTask() *asynq.Task { return asynq.NewTask(TypeReapTick, nil) }
