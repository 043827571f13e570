package isolation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-converter/internal/converter"
	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

const envHelperMode = "DOCCONV_HELPER_MODE"

// helperRegistry is what the re-executed test binary serves.
func helperRegistry() *converter.Registry {
	reg, err := converter.NewRegistry(
		converter.Descriptor{
			Kind:       models.KindWordToPDF,
			Extensions: []string{".docx"},
			Converter: document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
				if err := document.Validate(input, []string{".docx"}); err != nil {
					return nil, err
				}
				output = document.OutputPath(input, ".pdf", output)
				if err := os.WriteFile(output, []byte("%PDF-1.4"), 0644); err != nil {
					return nil, err
				}
				return []string{output}, nil
			}),
		},
		converter.Descriptor{
			Kind:       models.KindExcelToPDF,
			Extensions: []string{".xlsx"},
			Converter: document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
				return nil, models.MissingDependency(nil, "LibreOffice is not installed")
			}),
		},
	)
	if err != nil {
		panic(err)
	}
	return reg
}

// TestIsolationHelperProcess is not a real test; it is the child side when
// the test binary re-executes itself.
func TestIsolationHelperProcess(t *testing.T) {
	if !IsChild() {
		return
	}
	switch os.Getenv(envHelperMode) {
	case "hang":
		time.Sleep(time.Hour)
	case "fail":
		fmt.Fprintln(os.Stderr, "automation host crashed: 0x800706BE")
		os.Exit(3)
	case "nomarker":
		fmt.Println("conversion finished")
		os.Exit(0)
	default:
		os.Exit(Main(func() (*converter.Registry, error) { return helperRegistry(), nil }))
	}
	os.Exit(0)
}

func newTestWrapper(t *testing.T, mode string, timeout time.Duration, maxConcurrent int64) *Wrapper {
	t.Helper()
	w, err := New(Config{
		Timeout:       timeout,
		MaxConcurrent: maxConcurrent,
		WorkerPath:    os.Args[0],
	}, logger.NewTestLogger())
	require.NoError(t, err)
	w.args = []string{"-test.run=^TestIsolationHelperProcess$"}
	w.env = []string{envHelperMode + "=" + mode}
	return w
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("input"), 0644))
	return path
}

func TestWrapperSuccess(t *testing.T) {
	w := newTestWrapper(t, "ok", 30*time.Second, 2)
	input := writeInput(t, "report.docx")
	output := filepath.Join(filepath.Dir(input), "report_converted.pdf")

	paths, err := w.Convert(context.Background(), models.KindWordToPDF, input, output)
	require.NoError(t, err)
	assert.Equal(t, []string{output}, paths)
	assert.FileExists(t, output)
}

func TestWrapperPreservesChildReason(t *testing.T) {
	w := newTestWrapper(t, "ok", 30*time.Second, 2)

	_, err := w.Convert(context.Background(), models.KindExcelToPDF, writeInput(t, "book.xlsx"), "")
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonMissingDependency))
	assert.Contains(t, err.Error(), "LibreOffice is not installed")

	_, err = w.Convert(context.Background(), models.KindWordToPDF, writeInput(t, "notes.txt"), "")
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))
}

func TestWrapperNonZeroExit(t *testing.T) {
	w := newTestWrapper(t, "fail", 30*time.Second, 2)

	_, err := w.Convert(context.Background(), models.KindWordToPDF, writeInput(t, "report.docx"), "")
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonEngineFailure))
	assert.Contains(t, err.Error(), "0x800706BE")
}

func TestWrapperMissingMarker(t *testing.T) {
	w := newTestWrapper(t, "nomarker", 30*time.Second, 2)

	_, err := w.Convert(context.Background(), models.KindWordToPDF, writeInput(t, "report.docx"), "")
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonEngineFailure))
	assert.Contains(t, err.Error(), "conversion finished")
}

func TestWrapperTimeout(t *testing.T) {
	w := newTestWrapper(t, "hang", 500*time.Millisecond, 2)
	var pid atomic.Int64
	w.onStart = func(p int) { pid.Store(int64(p)) }

	start := time.Now()
	_, err := w.Convert(context.Background(), models.KindPPTToPDF, writeInput(t, "deck.pptx"), "")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonTimeout))
	assert.Contains(t, err.Error(), "dialog")
	assert.Less(t, elapsed, 500*time.Millisecond+waitDelay+2*time.Second)
	assert.NotZero(t, pid.Load())
	assertProcessGone(t, int(pid.Load()))
}

func TestWrapperBoundsConcurrency(t *testing.T) {
	w := newTestWrapper(t, "hang", 300*time.Millisecond, 1)
	var started atomic.Int32
	var overlapped atomic.Bool
	w.onStart = func(int) {
		started.Add(1)
		// the running child holds the only slot
		if w.sem.TryAcquire(1) {
			overlapped.Store(true)
			w.sem.Release(1)
		}
	}

	inputs := []string{writeInput(t, "a.docx"), writeInput(t, "b.docx"), writeInput(t, "c.docx")}
	var wg sync.WaitGroup
	for _, input := range inputs {
		wg.Add(1)
		go func(input string) {
			defer wg.Done()
			_, err := w.Convert(context.Background(), models.KindWordToPDF, input, "")
			assert.True(t, models.IsReason(err, models.ReasonTimeout))
		}(input)
	}
	wg.Wait()
	assert.Equal(t, int32(3), started.Load())
	assert.False(t, overlapped.Load())
}

func TestWrapperWaitingRespectsContext(t *testing.T) {
	w := newTestWrapper(t, "hang", 5*time.Second, 1)
	require.NoError(t, w.sem.Acquire(context.Background(), 1))
	defer w.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := w.Convert(ctx, models.KindWordToPDF, writeInput(t, "a.docx"), "")
	assert.True(t, models.IsReason(err, models.ReasonTimeout))
}

func TestRunChild(t *testing.T) {
	input := writeInput(t, "memo.docx")
	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(fmt.Sprintf(`{"kind":"word2pdf","input":%q}`, input))

	code := RunChild(context.Background(), helperRegistry(), stdin, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	paths, ok, err := parseResult(stdout.Bytes())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{strings.TrimSuffix(input, ".docx") + ".pdf"}, paths)
}

func TestRunChildReportsTypedError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(`{"kind":"pdf2epub","input":"/tmp/x.pdf"}`)

	code := RunChild(context.Background(), helperRegistry(), stdin, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())

	ce := parseChildError(stderr.Bytes())
	require.NotNil(t, ce)
	assert.Equal(t, models.ReasonInvalidInput, ce.Reason)
}

func TestParseResult(t *testing.T) {
	paths, ok, err := parseResult([]byte("noise\n" + ResultMarker + `["/a.pdf","/b.pdf"]` + "\n"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/a.pdf", "/b.pdf"}, paths)

	_, ok, _ = parseResult([]byte("nothing here"))
	assert.False(t, ok)

	_, ok, err = parseResult([]byte(ResultMarker + "{broken"))
	assert.True(t, ok)
	assert.Error(t, err)
}
