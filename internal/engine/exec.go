package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/document-converter/internal/models"
)

// maxDiagnostic bounds how much tool output ends up in an error message.
const maxDiagnostic = 4096

// Tool is an external binary together with the guidance shown when it is missing.
type Tool struct {
	Name string
	Path string
	Hint string
}

// LookupTool resolves the binary for name. A configured path wins and must
// exist; otherwise candidates are tried in order, absolute paths via stat and
// bare names via $PATH.
func LookupTool(name, configured, hint string, candidates ...string) (*Tool, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return nil, models.MissingDependency(err, "%s not found at configured path %s. %s", name, configured, hint)
		}
		return &Tool{Name: name, Path: configured, Hint: hint}, nil
	}

	for _, c := range candidates {
		if filepath.IsAbs(c) {
			if _, err := os.Stat(c); err == nil {
				return &Tool{Name: name, Path: c, Hint: hint}, nil
			}
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return &Tool{Name: name, Path: p, Hint: hint}, nil
		}
	}
	return nil, models.MissingDependency(exec.ErrNotFound, "%s is not installed. %s", name, hint)
}

// Output is what a finished tool wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Diagnostic returns the tail of the combined output for error messages.
func (o *Output) Diagnostic() string {
	s := strings.TrimSpace(string(o.Stderr) + "\n" + string(o.Stdout))
	if len(s) > maxDiagnostic {
		s = "..." + s[len(s)-maxDiagnostic:]
	}
	return s
}

// Run executes the tool and translates failures into the conversion taxonomy.
// A zero timeout means no deadline beyond ctx.
func (t *Tool) Run(ctx context.Context, timeout time.Duration, stdin io.Reader, args ...string) (*Output, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return out, models.Timeout(ctxErr, "%s did not finish within %s", t.Name, timeout)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return out, models.MissingDependency(err, "%s could not be started: %v. %s", t.Name, err, t.Hint)
	}
	return out, models.EngineFailure(err, "%s failed: %v, output: %s", t.Name, err, out.Diagnostic())
}

// moveFile renames src to dst, copying when they live on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func missingOutput(tool, path string, out *Output) error {
	return models.EngineFailure(nil, "%s reported success but produced no file at %s, output: %s",
		tool, path, out.Diagnostic())
}
