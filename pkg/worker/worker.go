package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	Redis       config.RedisConfig
	Concurrency int
	Queues      map[string]int
}

// DefaultConfig serves the maintenance queue with a single goroutine.
func DefaultConfig(redis config.RedisConfig) *Config {
	return &Config{
		Redis:       redis,
		Concurrency: 1,
		Queues:      map[string]int{queue.QueueMaintenance: 1},
	}
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

func newBaseWorker(cfg *Config, log logger.Logger) *BaseWorker {
	server := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			Logger:      queue.NewLogger(log),
		},
	)
	return &BaseWorker{
		server:   server,
		mux:      asynq.NewServeMux(),
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start runs the server in the background and stops it when ctx is done.
func (w *BaseWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}

func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.server.Shutdown()
	})
	return nil
}
