package store

import (
	"context"
	"errors"
	"fmt"

	"stagehand/internal/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// AsynqJobClient enqueues pipeline tasks on Redis.
type AsynqJobClient struct {
	client *asynq.Client
}

var _ JobClient = (*AsynqJobClient)(nil)

func NewAsynqJobClient(opt asynq.RedisClientOpt) (*AsynqJobClient, error) {
	if opt.Addr == "" {
		return nil, errors.New("redis address cannot be empty for AsynqJobClient")
	}
	return &AsynqJobClient{client: asynq.NewClient(opt)}, nil
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

func (jc *AsynqJobClient) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if jc.client == nil {
		return nil, errors.New("AsynqJobClient internal client is not initialized")
	}
	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"task_type": task.Type(), "task_id": info.ID, "queue": info.Queue}).Debug("task enqueued")
	return info, nil
}

// EnqueueElimination queues an elimination run. A run for the same job and round
// that is still queued counts as success.
func (jc *AsynqJobClient) EnqueueElimination(ctx context.Context, jobID uuid.UUID, roundNumber int) error {
	task, opts, err := tasks.NewEliminateTask(jobID, roundNumber)
	if err != nil {
		return fmt.Errorf("build elimination task for job %s: %w", jobID, err)
	}
	if _, err := jc.Enqueue(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.WithFields(log.Fields{"job_id": jobID, "round": roundNumber}).Debug("elimination already queued")
			return nil
		}
		return fmt.Errorf("enqueue elimination for job %s round %d: %w", jobID, roundNumber, err)
	}
	return nil
}
