package conversion

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-converter/internal/converter"
	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/internal/service/history"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage"
	"github.com/feichai0017/document-converter/pkg/storage/local"
)

// HoldingArea receives uploads until their job finishes.
type HoldingArea interface {
	Dir() string
	Store(ctx context.Context, reader io.Reader, filename string) (string, error)
	Delete(ctx context.Context, id string) error
}

// OutputArea is where deliverables are written.
type OutputArea interface {
	Path(name string) string
}

// Isolator runs a kind out of process.
type Isolator interface {
	Wrap(kind models.ConversionKind) document.Converter
}

// Upload is a file received by the web layer.
type Upload struct {
	Filename string
	Kind     string
	Size     int64
	Reader   io.Reader
}

// Outcome is what the web layer hands back to the client.
type Outcome struct {
	*models.ConversionResult
	// Download is the output-area file name to fetch: the single output, or
	// a zip of all outputs for multi-page results.
	Download string
}

type Option func(*Orchestrator)

// WithIsolator routes kinds that require isolation through iso. Without
// one they run in process.
func WithIsolator(iso Isolator) Option {
	return func(o *Orchestrator) { o.isolator = iso }
}

func WithRecorder(r history.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithMirror uploads deliverables to an object store after each web job.
func WithMirror(s storage.Storage) Option {
	return func(o *Orchestrator) { o.mirror = s }
}

func WithMaxUploadBytes(n int64) Option {
	return func(o *Orchestrator) { o.maxUpload = n }
}

// Orchestrator turns jobs into results. It keeps no per-job state, so one
// instance serves concurrent requests.
type Orchestrator struct {
	registry  *converter.Registry
	holding   HoldingArea
	outputs   OutputArea
	isolator  Isolator
	recorder  history.Recorder
	mirror    storage.Storage
	maxUpload int64
	logger    logger.Logger
	now       func() time.Time
}

func New(reg *converter.Registry, holding HoldingArea, outputs OutputArea, log logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	o := &Orchestrator{
		registry:  reg,
		holding:   holding,
		outputs:   outputs,
		recorder:  history.NopRecorder{},
		maxUpload: 50 * 1024 * 1024,
		logger:    log.Named("orchestrator"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var errTooLarge = errors.New("upload too large")

// Submit validates an upload without touching the disk, persists it under a
// unique name in the holding area and executes it.
func (o *Orchestrator) Submit(ctx context.Context, up Upload) (*Outcome, error) {
	desc, err := o.validateUpload(up)
	if err != nil {
		return nil, err
	}

	inputPath, inputName, err := o.persist(ctx, up)
	if err != nil {
		return nil, err
	}
	outputPath := o.outputs.Path(OutputName(inputName, desc.OutputExt))

	job := models.NewJob(desc.Kind, inputPath, outputPath, up.Filename)
	res, err := o.Execute(ctx, job)
	if err != nil {
		return nil, err
	}

	out := &Outcome{ConversionResult: res, Download: filepath.Base(res.Primary())}
	if len(res.OutputPaths) > 1 {
		zipPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".zip"
		if err := bundle(zipPath, res.OutputPaths); err != nil {
			ce := models.EngineFailure(err, "failed to bundle %d outputs: %v", len(res.OutputPaths), err)
			o.record(ctx, job, nil, ce)
			return nil, ce
		}
		out.Download = filepath.Base(zipPath)
	}

	o.mirrorOutputs(ctx, job, o.outputs.Path(out.Download))
	return out, nil
}

func (o *Orchestrator) validateUpload(up Upload) (*converter.Descriptor, error) {
	kind, err := models.ParseKind(up.Kind)
	if err != nil {
		return nil, err
	}
	desc, err := o.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if up.Reader == nil || up.Filename == "" {
		return nil, models.InvalidInput(nil, "no file uploaded")
	}
	if !desc.Accepts(up.Filename) {
		return nil, models.InvalidInput(nil, "unsupported file format %q for %s, supported formats: %s",
			document.Ext(up.Filename), kind, strings.Join(desc.Extensions, ", "))
	}
	if o.maxUpload > 0 && up.Size > o.maxUpload {
		return nil, models.InvalidInput(errTooLarge, "file is %d bytes, the limit is %d bytes", up.Size, o.maxUpload)
	}
	return desc, nil
}

// persist stores the upload, retrying on the (unlikely) name collision.
func (o *Orchestrator) persist(ctx context.Context, up Upload) (string, string, error) {
	reader := up.Reader
	if o.maxUpload > 0 {
		reader = &limitReader{r: reader, remaining: o.maxUpload}
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		name := InputName(o.now(), up.Filename)
		path, err := o.holding.Store(ctx, reader, name)
		if err == nil {
			return path, name, nil
		}
		if errors.Is(err, errTooLarge) {
			return "", "", models.InvalidInput(err, "file exceeds the limit of %d bytes", o.maxUpload)
		}
		if !errors.Is(err, local.ErrExists) {
			return "", "", models.EngineFailure(err, "failed to save upload: %v", err)
		}
		lastErr = err
	}
	return "", "", models.EngineFailure(lastErr, "failed to save upload: %v", lastErr)
}

// Execute runs job and then removes its input from the holding area,
// whatever the outcome. Inputs that live elsewhere are left alone.
func (o *Orchestrator) Execute(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error) {
	defer func() {
		if !o.inHolding(job.InputPath) {
			return
		}
		if err := o.holding.Delete(context.WithoutCancel(ctx), job.InputPath); err != nil {
			o.logger.Warn("Failed to remove input",
				logger.String("jobId", job.ID),
				logger.String("path", job.InputPath),
				logger.Error(err),
			)
		}
	}()
	return o.Run(ctx, job)
}

// inHolding reports whether path names a file directly inside the holding
// directory.
func (o *Orchestrator) inHolding(path string) bool {
	if o.holding == nil || path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(o.holding.Dir(), abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && rel == filepath.Base(rel)
}

// Run resolves and invokes the converter for job. It never deletes the
// input; callers that own it use Execute.
func (o *Orchestrator) Run(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error) {
	log := logger.FromContext(ctx, o.logger).With(
		logger.String("jobId", job.ID),
		logger.String("kind", job.Kind.String()),
	)

	res, ce := o.run(ctx, job)
	o.record(ctx, job, res, ce)
	if ce != nil {
		log.Error("Conversion failed",
			logger.String("input", filepath.Base(job.InputPath)),
			logger.String("reason", string(ce.Reason)),
			logger.Error(ce),
		)
		return nil, ce
	}

	names := make([]string, len(res.OutputPaths))
	for i, p := range res.OutputPaths {
		names[i] = filepath.Base(p)
	}
	log.Info("Conversion completed",
		logger.String("input", filepath.Base(job.InputPath)),
		logger.Strings("outputs", names),
		logger.Duration("duration", res.Duration),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, *models.ConversionError) {
	desc, err := o.registry.Lookup(job.Kind)
	if err != nil {
		return nil, models.Normalize(err)
	}
	if !desc.Accepts(job.InputPath) {
		return nil, models.InvalidInput(nil, "unsupported file format %q for %s, supported formats: %s",
			document.Ext(job.InputPath), job.Kind, strings.Join(desc.Extensions, ", "))
	}

	conv := desc.Converter
	if desc.RequiresIsolation && o.isolator != nil {
		conv = o.isolator.Wrap(desc.Kind)
	}

	o.save(ctx, &history.Record{
		JobID:        job.ID,
		Kind:         job.Kind,
		OriginalName: job.OriginalName,
		StartedAt:    job.CreatedAt,
		Status:       models.StatusRunning,
	})

	start := o.now()
	paths, err := conv.Convert(ctx, job.InputPath, job.OutputPath)
	if err != nil {
		return nil, models.Normalize(err)
	}
	if len(paths) == 0 {
		return nil, models.EngineFailure(nil, "%s produced no output", job.Kind)
	}
	return &models.ConversionResult{
		JobID:       job.ID,
		Kind:        job.Kind,
		OutputPaths: paths,
		Duration:    o.now().Sub(start),
	}, nil
}

func (o *Orchestrator) record(ctx context.Context, job *models.ConversionJob, res *models.ConversionResult, ce *models.ConversionError) {
	rec := &history.Record{
		JobID:        job.ID,
		Kind:         job.Kind,
		OriginalName: job.OriginalName,
		StartedAt:    job.CreatedAt,
		FinishedAt:   o.now(),
		Status:       models.StatusCompleted,
	}
	if ce != nil {
		rec.Status = models.StatusFailed
		rec.Reason = ce.Reason
		rec.Error = ce.Error()
	}
	if res != nil {
		for _, p := range res.OutputPaths {
			rec.Outputs = append(rec.Outputs, filepath.Base(p))
		}
	}
	o.save(ctx, rec)
}

func (o *Orchestrator) save(ctx context.Context, rec *history.Record) {
	if err := o.recorder.Save(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("Failed to record job", logger.String("jobId", rec.JobID), logger.Error(err))
	}
}

// mirrorOutputs copies deliverables to the object store. Failures are
// logged; the local copy stays authoritative.
func (o *Orchestrator) mirrorOutputs(ctx context.Context, job *models.ConversionJob, paths ...string) {
	if o.mirror == nil {
		return
	}
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, p := range paths {
		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = o.mirror.Store(gctx, f, filepath.Base(p))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.Warn("Failed to mirror outputs",
			logger.String("jobId", job.ID),
			logger.Error(err),
		)
	}
}

// limitReader fails once more than remaining bytes have been read.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}
