// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/config"
)

// TaskType 定义任务类型
const (
	TaskTypeCleanupSweep = "cleanup:sweep"
)

// QueueMaintenance carries housekeeping tasks.
const QueueMaintenance = "maintenance"

// sweepTimeout bounds one sweep task on the worker.
const sweepTimeout = 10 * time.Minute

// SweepPayload is the body of a cleanup:sweep task.
type SweepPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

// RedisOpt converts the redis section into asynq connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewSweepTask builds a cleanup:sweep task. Sweeps are idempotent and run
// periodically, so a failed one is not retried.
func NewSweepTask(reason string, now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPayload{Reason: reason, RequestedAt: now})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeCleanupSweep, payload,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(sweepTimeout),
	), nil
}

// ParseSweepPayload decodes the body of a cleanup:sweep task.
func ParseSweepPayload(t *asynq.Task) (*SweepPayload, error) {
	var p SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &p, nil
}

// Queue enqueues maintenance tasks.
type Queue struct {
	client *asynq.Client
}

func New(cfg config.RedisConfig) *Queue {
	return &Queue{client: asynq.NewClient(RedisOpt(cfg))}
}

// EnqueueSweep asks the worker for an immediate sweep.
func (q *Queue) EnqueueSweep(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	task, err := NewSweepTask(reason, time.Now())
	if err != nil {
		return nil, err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
