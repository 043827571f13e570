package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/internal/service/cleanup"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
)

// Sweeper removes expired files.
type Sweeper interface {
	Sweep(ctx context.Context) (cleanup.Report, error)
}

var _ Worker = (*SweepWorker)(nil)

// SweepWorker handles cleanup:sweep tasks.
type SweepWorker struct {
	*BaseWorker
	sweeper Sweeper
}

func NewSweepWorker(cfg *Config, sweeper Sweeper, log logger.Logger) *SweepWorker {
	if log == nil {
		log = logger.NewNop()
	}
	w := &SweepWorker{
		BaseWorker: newBaseWorker(cfg, log.Named("worker")),
		sweeper:    sweeper,
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypeCleanupSweep, w.HandleSweep)
	return w
}

func (w *SweepWorker) HandleSweep(ctx context.Context, t *asynq.Task) error {
	p, err := queue.ParseSweepPayload(t)
	if err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing sweep task",
		logger.String("reason", p.Reason),
		logger.Time("requestedAt", p.RequestedAt),
	)

	report, err := w.sweeper.Sweep(ctx)
	if rw := t.ResultWriter(); rw != nil {
		if data, merr := json.Marshal(report); merr == nil {
			if _, werr := rw.Write(data); werr != nil {
				w.logger.Error("Failed to write task result", logger.Error(werr))
			}
		}
	}
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return nil
}
