// Package cleanup removes expired uploads and deliverables.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage"
)

// Area is a directory that can drop files older than a threshold.
type Area interface {
	Sweep(ctx context.Context, threshold time.Time) (int, error)
}

// Report counts what one sweep removed.
type Report struct {
	Holding int
	Outputs int
}

// Sweeper applies the retention periods of the holding area, the output
// area and the optional object-store mirror.
type Sweeper struct {
	holding       Area
	outputs       Area
	mirror        storage.Storage
	holdingMaxAge time.Duration
	outputMaxAge  time.Duration
	logger        logger.Logger
	now           func() time.Time
}

// New returns a sweeper. mirror may be nil.
func New(cfg config.StorageConfig, holding, outputs Area, mirror storage.Storage, log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		holding:       holding,
		outputs:       outputs,
		mirror:        mirror,
		holdingMaxAge: cfg.HoldingMaxAge,
		outputMaxAge:  cfg.OutputMaxAge,
		logger:        log.Named("cleanup"),
		now:           time.Now,
	}
}

// Sweep removes expired files everywhere. It keeps going after a failure
// and returns all errors joined.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
		now    = s.now()
	)

	if s.holdingMaxAge > 0 {
		n, err := s.holding.Sweep(ctx, now.Add(-s.holdingMaxAge))
		report.Holding = n
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to sweep holding area: %w", err))
		}
	}

	if s.outputMaxAge > 0 {
		threshold := now.Add(-s.outputMaxAge)
		n, err := s.outputs.Sweep(ctx, threshold)
		report.Outputs = n
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to sweep output area: %w", err))
		}
		if s.mirror != nil {
			if err := s.mirror.CleanupBefore(ctx, threshold); err != nil {
				errs = append(errs, fmt.Errorf("failed to cleanup mirror: %w", err))
			}
		}
	}

	s.logger.Info("Completed cleanup sweep",
		logger.Int("holdingRemoved", report.Holding),
		logger.Int("outputsRemoved", report.Outputs),
	)
	return report, errors.Join(errs...)
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval is logged and nothing is swept.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Error("Cleanup interval must be positive", logger.Duration("interval", interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Cleanup sweep failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
