// Package isolation runs conversions that drive crash-prone automation
// hosts in a disposable child process with a wall-clock deadline.
package isolation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

const (
	// EnvChild is set to "1" in the environment of isolated children.
	EnvChild = "DOCCONV_ISOLATED_CHILD"

	// ResultMarker prefixes the stdout line carrying the produced paths.
	ResultMarker = "DOCCONV-RESULT:"
	// ErrorMarker prefixes the stderr line carrying a typed failure.
	ErrorMarker = "DOCCONV-ERROR:"

	DefaultTimeout       = 120 * time.Second
	DefaultMaxConcurrent = 2

	maxDiagnostic = 4096
	waitDelay     = 2 * time.Second
)

// Request is what the parent sends to the child on stdin.
type Request struct {
	Kind   models.ConversionKind `json:"kind"`
	Input  string                `json:"input"`
	Output string                `json:"output,omitempty"`
}

type childError struct {
	Reason  models.ErrorReason `json:"reason"`
	Message string             `json:"message"`
}

// Config configures a Wrapper.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int64
	// WorkerPath is the binary to execute; empty means the running executable.
	WorkerPath string
}

// Wrapper runs conversions in child processes. At most MaxConcurrent
// children run at once; callers beyond that wait for a slot.
type Wrapper struct {
	logger  logger.Logger
	timeout time.Duration
	sem     *semaphore.Weighted
	path    string
	args    []string
	env     []string
	onStart func(pid int)
}

// New creates a Wrapper.
func New(cfg Config, log logger.Logger) (*Wrapper, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	path := cfg.WorkerPath
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}

	return &Wrapper{
		logger:  log.Named("isolation"),
		timeout: cfg.Timeout,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		path:    path,
	}, nil
}

// Wrap returns a Converter that runs kind through the child process.
func (w *Wrapper) Wrap(kind models.ConversionKind) document.Converter {
	return document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
		return w.Convert(ctx, kind, input, output)
	})
}

// Convert runs one conversion in a child process. Waiting for a free slot
// counts against ctx; the child itself gets the wrapper's timeout.
func (w *Wrapper) Convert(ctx context.Context, kind models.ConversionKind, input, output string) ([]string, error) {
	req, err := w.request(kind, input, output)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, models.EngineFailure(err, "encode isolation request: %v", err)
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, models.Normalize(err)
	}
	defer w.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, w.path, w.args...)
	cmd.Env = append(append(os.Environ(), EnvChild+"=1"), w.env...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, models.EngineFailure(err, "failed to start isolated worker %s: %v", w.path, err)
	}
	log := w.logger.With(
		logger.String("kind", kind.String()),
		logger.Int("pid", cmd.Process.Pid),
	)
	log.Debug("isolated worker started")
	if w.onStart != nil {
		w.onStart(cmd.Process.Pid)
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		log.Warn("isolated worker killed after timeout", logger.Duration("elapsed", elapsed))
		return nil, models.Timeout(runCtx.Err(),
			"%s did not finish within %s and was terminated. The automation host may be showing a dialog "+
				"that needs manual intervention (repair prompt, password, macro warning); open the file "+
				"interactively to check", kind, w.timeout)
	}
	if ctx.Err() != nil {
		return nil, models.Normalize(ctx.Err())
	}

	if ce := parseChildError(stderr.Bytes()); ce != nil {
		log.Debug("isolated worker reported failure", logger.String("reason", string(ce.Reason)))
		return nil, ce
	}
	if waitErr != nil {
		return nil, models.EngineFailure(waitErr, "isolated %s conversion failed: %v, output: %s",
			kind, waitErr, diagnostic(&stdout, &stderr))
	}

	paths, ok, err := parseResult(stdout.Bytes())
	if err != nil {
		return nil, models.EngineFailure(err, "isolated %s conversion returned a malformed result: %v", kind, err)
	}
	if !ok {
		return nil, models.EngineFailure(nil, "isolated %s conversion exited without reporting success, output: %s",
			kind, diagnostic(&stdout, &stderr))
	}

	log.Debug("isolated worker finished", logger.Duration("elapsed", elapsed), logger.Int("outputs", len(paths)))
	return paths, nil
}

func (w *Wrapper) request(kind models.ConversionKind, input, output string) (*Request, error) {
	absIn, err := filepath.Abs(input)
	if err != nil {
		return nil, models.InvalidInput(err, "failed to get absolute path for input: %v", err)
	}
	req := &Request{Kind: kind, Input: absIn}
	if output != "" {
		absOut, err := filepath.Abs(output)
		if err != nil {
			return nil, models.InvalidInput(err, "failed to get absolute path for output: %v", err)
		}
		req.Output = absOut
	}
	return req, nil
}

// parseResult finds the last result marker line on stdout.
func parseResult(stdout []byte) ([]string, bool, error) {
	var line string
	found := false
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if rest, ok := strings.CutPrefix(sc.Text(), ResultMarker); ok {
			line, found = rest, true
		}
	}
	if !found {
		return nil, false, nil
	}
	var paths []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &paths); err != nil {
		return nil, true, err
	}
	return paths, true, nil
}

func parseChildError(stderr []byte) *models.ConversionError {
	for _, line := range strings.Split(string(stderr), "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), ErrorMarker)
		if !ok {
			continue
		}
		var ce childError
		if err := json.Unmarshal([]byte(rest), &ce); err != nil || ce.Reason == "" {
			continue
		}
		return &models.ConversionError{Reason: ce.Reason, Message: ce.Message}
	}
	return nil
}

func diagnostic(stdout, stderr *bytes.Buffer) string {
	s := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
	if len(s) > maxDiagnostic {
		s = "..." + s[len(s)-maxDiagnostic:]
	}
	if s == "" {
		return "(none)"
	}
	return s
}
