package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// Scheduler enqueues a cleanup:sweep task on a fixed interval.
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    logger.Logger
	entryID   string
}

// CronSpec returns the asynq schedule for interval.
func CronSpec(interval time.Duration) string {
	return "@every " + interval.String()
}

func NewScheduler(cfg config.RedisConfig, interval time.Duration, log logger.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cleanup interval must be positive, got %s", interval)
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("scheduler")

	s := &Scheduler{logger: log}
	s.scheduler = asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{
		Logger: NewLogger(log),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("Failed to enqueue periodic sweep", logger.Error(err))
				return
			}
			log.Debug("Enqueued periodic sweep", logger.String("taskId", info.ID))
		},
	})

	task, err := NewSweepTask("periodic", time.Now())
	if err != nil {
		return nil, err
	}
	id, err := s.scheduler.Register(CronSpec(interval), task)
	if err != nil {
		return nil, fmt.Errorf("failed to register sweep: %w", err)
	}
	s.entryID = id
	return s, nil
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.logger.Info("Scheduler started", logger.String("entryId", s.entryID))
	<-ctx.Done()
	s.scheduler.Shutdown()
	return nil
}
