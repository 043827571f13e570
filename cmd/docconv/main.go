// Command docconv converts documents from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/converter/builtin"
	"github.com/feichai0017/document-converter/internal/isolation"
	"github.com/feichai0017/document-converter/internal/service/conversion"
	"github.com/feichai0017/document-converter/pkg/logger"
)

func main() {
	if isolation.IsChild() {
		os.Exit(isolation.Main(builtin.FromEnv))
	}
	os.Exit(run())
}

func run() int {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := config.SetPath(opts.configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithDevelopment(opts.verbose),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Sync()

	reg, err := builtin.New(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	iso, err := isolation.New(isolation.Config{
		Timeout:       cfg.Isolation.Timeout,
		MaxConcurrent: cfg.Isolation.MaxConcurrent,
		WorkerPath:    cfg.Isolation.WorkerPath,
	}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	// Files given on the command line belong to the user: jobs go through
	// Run, which needs neither a holding nor an output area.
	orch := conversion.New(reg, nil, nil, log, conversion.WithIsolator(iso))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{runner: orch, catalog: reg, stdout: os.Stdout}
	return a.execute(ctx, opts)
}
