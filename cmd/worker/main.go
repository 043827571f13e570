package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/converter/builtin"
	"github.com/feichai0017/document-converter/internal/isolation"
	"github.com/feichai0017/document-converter/internal/service/cleanup"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
	"github.com/feichai0017/document-converter/pkg/storage"
	"github.com/feichai0017/document-converter/pkg/worker"
)

func main() {
	if isolation.IsChild() {
		os.Exit(isolation.Main(builtin.FromEnv))
	}

	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := config.SetPath(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithDevelopment(cfg.Log.Development),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holding, err := storage.NewLocal(cfg.Storage.HoldingDir, log.Named("holding"))
	if err != nil {
		log.Error("Failed to open holding area", logger.Error(err))
		os.Exit(1)
	}
	outputs, err := storage.NewLocal(cfg.Storage.OutputDir, log.Named("outputs"))
	if err != nil {
		log.Error("Failed to open output area", logger.Error(err))
		os.Exit(1)
	}
	mirror, err := storage.NewMirror(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to connect output mirror", logger.Error(err))
		os.Exit(1)
	}
	sweeper := cleanup.New(cfg.Storage, holding, outputs, mirror, log)

	// 创建 worker
	sweepWorker := worker.NewSweepWorker(worker.DefaultConfig(cfg.Redis), sweeper, log)
	if err := sweepWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	scheduler, err := queue.NewScheduler(cfg.Redis, cfg.Cleanup.Interval, log)
	if err != nil {
		log.Error("Failed to create scheduler", logger.Error(err))
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			log.Error("Scheduler stopped", logger.Error(err))
			stop()
		}
	}()

	// sweep once at startup rather than waiting a full interval
	q := queue.New(cfg.Redis)
	if info, err := q.EnqueueSweep(ctx, "startup"); err != nil {
		log.Warn("Failed to enqueue startup sweep", logger.Error(err))
	} else {
		log.Info("Enqueued startup sweep", logger.String("taskId", info.ID))
	}
	q.Close()

	// 等待中断信号
	<-ctx.Done()

	// 优雅关闭
	log.Info("Shutting down worker...")
	sweepWorker.Stop()
	log.Info("Worker stopped")
}
