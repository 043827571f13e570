package conversion

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
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
	"github.com/feichai0017/document-converter/internal/converter/frompdf"
	"github.com/feichai0017/document-converter/internal/converter/topdf"
	"github.com/feichai0017/document-converter/internal/engine"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/internal/service/history"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage/local"
)

type fakeEngine struct{ calls *atomic.Int32 }

func (f fakeEngine) Open(ctx context.Context, input string) error { return nil }
func (f fakeEngine) Close() error                                 { return nil }
func (f fakeEngine) Export(ctx context.Context, output, format string) error {
	f.calls.Add(1)
	return os.WriteFile(output, []byte("%PDF-1.4"), 0644)
}

type fakeRasterizer struct{ pages int }

func (f fakeRasterizer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	return f.pages, nil
}

func (f fakeRasterizer) RenderPage(ctx context.Context, pdfPath string, page, dpi int, format engine.ImageFormat, dest string) error {
	return os.WriteFile(dest, []byte(fmt.Sprintf("page %d", page)), 0644)
}

type noTables struct{}

func (noTables) ExtractTables(ctx context.Context, pdfPath string) ([]engine.Table, error) {
	return nil, nil
}

type fakeIsolator struct {
	mu    sync.Mutex
	kinds []models.ConversionKind
	reg   *converter.Registry
}

func (f *fakeIsolator) Wrap(kind models.ConversionKind) document.Converter {
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
	d, _ := f.reg.Lookup(kind)
	return d.Converter
}

type fakeMirror struct {
	mu     sync.Mutex
	stored []string
}

func (m *fakeMirror) Store(ctx context.Context, r io.Reader, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, name)
	return name, nil
}
func (m *fakeMirror) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (m *fakeMirror) Delete(ctx context.Context, id string) error                  { return nil }
func (m *fakeMirror) CleanupBefore(ctx context.Context, threshold time.Time) error { return nil }

type fixture struct {
	orch        *Orchestrator
	holding     *local.Storage
	outputs     *local.Storage
	engineCalls *atomic.Int32
	isolator    *fakeIsolator
	recorder    *history.MemoryRecorder
	mirror      *fakeMirror
	log         *logger.TestLogger
}

func newFixture(t *testing.T, extra ...converter.Descriptor) *fixture {
	t.Helper()
	root := t.TempDir()
	holding, err := local.New(filepath.Join(root, "uploads"), nil)
	require.NoError(t, err)
	outputs, err := local.New(filepath.Join(root, "outputs"), nil)
	require.NoError(t, err)

	calls := &atomic.Int32{}
	office := func() engine.AutomationEngine { return fakeEngine{calls: calls} }
	descs := []converter.Descriptor{
		{
			Kind: models.KindWordToPDF, Group: converter.GroupToPDF,
			Extensions: topdf.WordExtensions, OutputExt: ".pdf", RequiresIsolation: true,
			Converter: topdf.NewOfficeConverter(topdf.WordExtensions, office),
		},
		{
			Kind: models.KindPDFToImage, Group: converter.GroupFromPDF,
			Extensions: frompdf.Extensions, OutputExt: ".jpg", MultiOutput: true,
			Converter: frompdf.NewImageConverter(nil, fakeRasterizer{pages: 3}, 0),
		},
		{
			Kind: models.KindPDFToExcel, Group: converter.GroupFromPDF,
			Extensions: frompdf.Extensions, OutputExt: ".xlsx",
			Converter: frompdf.NewSpreadsheetConverter(nil, noTables{}),
		},
	}
	reg, err := converter.NewRegistry(append(descs, extra...)...)
	require.NoError(t, err)

	f := &fixture{
		holding:     holding,
		outputs:     outputs,
		engineCalls: calls,
		isolator:    &fakeIsolator{reg: reg},
		recorder:    history.NewMemoryRecorder(time.Hour),
		mirror:      &fakeMirror{},
		log:         logger.NewTestLogger(),
	}
	f.orch = New(reg, holding, outputs, f.log,
		WithIsolator(f.isolator),
		WithRecorder(f.recorder),
		WithMirror(f.mirror),
		WithMaxUploadBytes(1024),
	)
	return f
}

func upload(name, kind, body string) Upload {
	return Upload{Filename: name, Kind: kind, Size: int64(len(body)), Reader: strings.NewReader(body)}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSubmitWordToPDF(t *testing.T) {
	f := newFixture(t)

	out, err := f.orch.Submit(context.Background(), upload("report.docx", "word2pdf", "docx bytes"))
	require.NoError(t, err)
	require.Len(t, out.OutputPaths, 1)
	assert.True(t, strings.HasSuffix(out.OutputPaths[0], "_report_converted.pdf"))
	assert.Equal(t, filepath.Base(out.OutputPaths[0]), out.Download)
	assert.FileExists(t, out.OutputPaths[0])

	assert.Empty(t, dirEntries(t, f.holding.Dir()), "upload must be removed")
	assert.Equal(t, []models.ConversionKind{models.KindWordToPDF}, f.isolator.kinds)
	assert.Equal(t, []string{out.Download}, f.mirror.stored)

	rec, err := f.recorder.Get(context.Background(), out.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "report.docx", rec.OriginalName)
}

func TestSubmitPDFToImagePages(t *testing.T) {
	f := newFixture(t)

	out, err := f.orch.Submit(context.Background(), upload("slides.pdf", "pdf2img", "%PDF"))
	require.NoError(t, err)
	require.Len(t, out.OutputPaths, 3)
	for i, p := range out.OutputPaths {
		assert.True(t, strings.HasSuffix(p, fmt.Sprintf("_page_%d.jpg", i+1)), p)
	}
	assert.True(t, strings.HasSuffix(out.Download, "_slides_converted.zip"))
	assert.Empty(t, f.isolator.kinds)

	zr, err := zip.OpenReader(f.outputs.Path(out.Download))
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 3)
	assert.Equal(t, filepath.Base(out.OutputPaths[0]), zr.File[0].Name)
}

func TestSubmitRejectsExtensionBeforeAnyIO(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(context.Background(), upload("notes.txt", "word2pdf", "hello"))
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))
	assert.Zero(t, f.engineCalls.Load())
	assert.Empty(t, dirEntries(t, f.holding.Dir()))
	assert.Empty(t, dirEntries(t, f.outputs.Dir()))
}

func TestSubmitRejectsUnknownKindAndMissingFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(context.Background(), upload("a.pdf", "pdf2epub", "x"))
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))
	assert.True(t, errors.Is(err, models.ErrUnknownKind))

	_, err = f.orch.Submit(context.Background(), Upload{Kind: "pdf2img"})
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))
}

func TestSubmitEnforcesSizeLimit(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(context.Background(), upload("big.pdf", "pdf2img", strings.Repeat("x", 2048)))
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))

	// declared size lies; the stream is still cut off
	lying := Upload{Filename: "big.pdf", Kind: "pdf2img", Size: 10, Reader: bytes.NewReader(make([]byte, 4096))}
	_, err = f.orch.Submit(context.Background(), lying)
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))
	assert.Empty(t, dirEntries(t, f.holding.Dir()))
}

func TestSubmitNoTablesFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(context.Background(), upload("scan.pdf", "pdf2excel", "%PDF"))
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonNoTablesFound))
	assert.Empty(t, dirEntries(t, f.holding.Dir()))
	assert.Empty(t, f.mirror.stored)
	assert.True(t, f.log.HasMessage("ERROR", "Conversion failed"))
}

func TestExecuteRemovesInputOnFailure(t *testing.T) {
	boom := converter.Descriptor{
		Kind: models.KindHTMLToPDF, Extensions: topdf.HTMLExtensions, OutputExt: ".pdf",
		Converter: document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
			return nil, errors.New("renderer exploded")
		}),
	}
	f := newFixture(t, boom)

	input, err := f.holding.Store(context.Background(), strings.NewReader("<html/>"), "page.html")
	require.NoError(t, err)
	job := models.NewJob(models.KindHTMLToPDF, input, f.outputs.Path("page_converted.pdf"), "page.html")

	_, err = f.orch.Execute(context.Background(), job)
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonEngineFailure))
	assert.Contains(t, err.Error(), "renderer exploded")
	assert.NoFileExists(t, input)

	rec, err := f.recorder.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, models.ReasonEngineFailure, rec.Reason)
}

func TestExecuteLeavesInputOutsideHolding(t *testing.T) {
	ok := converter.Descriptor{
		Kind: models.KindHTMLToPDF, Extensions: topdf.HTMLExtensions, OutputExt: ".pdf",
		Converter: document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
			return []string{output}, os.WriteFile(output, []byte("%PDF"), 0644)
		}),
	}
	f := newFixture(t, ok)

	held, err := f.holding.Store(context.Background(), strings.NewReader("<html/>"), "page.html")
	require.NoError(t, err)
	foreign := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(foreign, []byte("<html/>"), 0644))

	job := models.NewJob(models.KindHTMLToPDF, foreign, f.outputs.Path("page_converted.pdf"), "page.html")
	_, err = f.orch.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.FileExists(t, foreign)
	assert.FileExists(t, held)
}

func TestInHolding(t *testing.T) {
	f := newFixture(t)
	dir := f.holding.Dir()

	assert.True(t, f.orch.inHolding(filepath.Join(dir, "a.docx")))
	assert.False(t, f.orch.inHolding(dir))
	assert.False(t, f.orch.inHolding(filepath.Join(dir, "sub", "a.docx")))
	assert.False(t, f.orch.inHolding(filepath.Join(dir, "..", "a.docx")))
	assert.False(t, f.orch.inHolding(filepath.Join(t.TempDir(), "a.docx")))
	assert.False(t, f.orch.inHolding(""))

	bare := New(f.orch.registry, nil, nil, nil)
	assert.False(t, bare.inHolding(filepath.Join(dir, "a.docx")))
}

func TestRunRecordsRunningBeforeDispatch(t *testing.T) {
	job := models.NewJob(models.KindHTMLToPDF, "/tmp/page.html", "", "page.html")
	var f *fixture
	var seen models.JobStatus
	watch := converter.Descriptor{
		Kind: models.KindHTMLToPDF, Extensions: topdf.HTMLExtensions, OutputExt: ".pdf",
		Converter: document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
			rec, err := f.recorder.Get(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			seen = rec.Status
			return []string{"/tmp/page.pdf"}, nil
		}),
	}
	f = newFixture(t, watch)

	_, err := f.orch.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, seen)

	rec, err := f.recorder.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, []string{"page.pdf"}, rec.Outputs)
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestRunKeepsInput(t *testing.T) {
	f := newFixture(t)
	input := filepath.Join(t.TempDir(), "mine.pdf")
	require.NoError(t, os.WriteFile(input, []byte("%PDF"), 0644))

	res, err := f.orch.Run(context.Background(), models.NewJob(models.KindPDFToImage, input, "", "mine.pdf"))
	require.NoError(t, err)
	assert.Len(t, res.OutputPaths, 3)
	assert.FileExists(t, input)
	assert.Empty(t, f.mirror.stored)
}

func TestRunNormalizesDeadline(t *testing.T) {
	slow := converter.Descriptor{
		Kind: models.KindHTMLToPDF, Extensions: topdf.HTMLExtensions,
		Converter: document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}
	f := newFixture(t, slow)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.orch.Run(ctx, models.NewJob(models.KindHTMLToPDF, "/tmp/x.html", "", ""))
	assert.True(t, models.IsReason(err, models.ReasonTimeout))
}

func TestConcurrentSubmitsNeverCollide(t *testing.T) {
	f := newFixture(t)

	const n = 12
	results := make([]*Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.orch.Submit(context.Background(), upload("report.docx", "word2pdf", "same"))
			if assert.NoError(t, err) {
				results[i] = out
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, out := range results {
		require.NotNil(t, out)
		seen[out.Download] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, dirEntries(t, f.outputs.Dir()), n)
	assert.Empty(t, dirEntries(t, f.holding.Dir()))
}
