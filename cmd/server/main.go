package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/api/handlers"
	"github.com/feichai0017/document-converter/api/routes"
	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/converter/builtin"
	"github.com/feichai0017/document-converter/internal/isolation"
	"github.com/feichai0017/document-converter/internal/service/cleanup"
	"github.com/feichai0017/document-converter/internal/service/conversion"
	"github.com/feichai0017/document-converter/internal/service/history"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage"
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

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithDevelopment(cfg.Log.Development),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := builtin.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to build converter registry", logger.Error(err))
	}
	holding, err := storage.NewLocal(cfg.Storage.HoldingDir, log.Named("holding"))
	if err != nil {
		log.Fatal("Failed to open holding area", logger.Error(err))
	}
	outputs, err := storage.NewLocal(cfg.Storage.OutputDir, log.Named("outputs"))
	if err != nil {
		log.Fatal("Failed to open output area", logger.Error(err))
	}
	mirror, err := storage.NewMirror(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to connect output mirror", logger.Error(err))
	}
	iso, err := isolation.New(isolation.Config{
		Timeout:       cfg.Isolation.Timeout,
		MaxConcurrent: cfg.Isolation.MaxConcurrent,
		WorkerPath:    cfg.Isolation.WorkerPath,
	}, log)
	if err != nil {
		log.Fatal("Failed to set up isolation", logger.Error(err))
	}

	var recorder history.Recorder = history.NewMemoryRecorder(cfg.Storage.OutputMaxAge)
	if cfg.Redis.Enabled {
		rr, err := history.NewRedisRecorder(ctx, cfg.Redis, cfg.Storage.OutputMaxAge)
		if err != nil {
			log.Fatal("Failed to connect to redis", logger.Error(err))
		}
		defer rr.Close()
		recorder = rr
	}

	orch := conversion.New(reg, holding, outputs, log,
		conversion.WithIsolator(iso),
		conversion.WithRecorder(recorder),
		conversion.WithMirror(mirror),
		conversion.WithMaxUploadBytes(cfg.Server.MaxUploadBytes()),
	)

	if cfg.Cleanup.InProcess {
		sweeper := cleanup.New(cfg.Storage, holding, outputs, mirror, log)
		go sweeper.Run(ctx, cfg.Cleanup.Interval)
	}

	// init handlers
	h := handlers.NewHandlers(orch, reg, handlers.Config{
		Outputs:        outputs,
		Mirror:         mirror,
		Recorder:       recorder,
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
	}, log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// start server
	go func() {
		log.Info("Server starting",
			logger.String("addr", cfg.Server.Addr),
			logger.String("holdingDir", holding.Dir()),
			logger.String("outputDir", outputs.Dir()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
