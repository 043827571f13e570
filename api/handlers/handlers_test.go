package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-converter/api/handlers"
	"github.com/feichai0017/document-converter/api/routes"
	"github.com/feichai0017/document-converter/internal/converter"
	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/internal/service/conversion"
	"github.com/feichai0017/document-converter/internal/service/history"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage/local"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSubmitter struct {
	got     conversion.Upload
	body    []byte
	outcome *conversion.Outcome
	err     error
}

func (f *fakeSubmitter) Submit(ctx context.Context, up conversion.Upload) (*conversion.Outcome, error) {
	f.got = up
	f.body, _ = io.ReadAll(up.Reader)
	return f.outcome, f.err
}

type fakeMirror struct {
	objects map[string]string
}

func (m *fakeMirror) Store(ctx context.Context, r io.Reader, name string) (string, error) {
	return name, nil
}

func (m *fakeMirror) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	data, ok := m.objects[id]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (m *fakeMirror) Delete(ctx context.Context, id string) error { return nil }
func (m *fakeMirror) CleanupBefore(ctx context.Context, threshold time.Time) error {
	return nil
}

type server struct {
	router   *gin.Engine
	sub      *fakeSubmitter
	outputs  *local.Storage
	recorder *history.MemoryRecorder
	mirror   *fakeMirror
}

func noop(ctx context.Context, input, output string) ([]string, error) { return nil, nil }

func newServer(t *testing.T, maxUpload int64) *server {
	t.Helper()
	outputs, err := local.New(t.TempDir(), nil)
	require.NoError(t, err)

	reg, err := converter.NewRegistry(
		converter.Descriptor{
			Kind: models.KindWordToPDF, Name: "Word to PDF", Group: converter.GroupToPDF,
			Extensions: []string{".docx", ".doc"}, OutputExt: ".pdf",
			Converter: document.ConverterFunc(noop),
		},
		converter.Descriptor{
			Kind: models.KindPDFToImage, Name: "PDF to Images", Group: converter.GroupFromPDF,
			Extensions: []string{".pdf"}, OutputExt: ".jpg", MultiOutput: true,
			Converter: document.ConverterFunc(noop),
		},
	)
	require.NoError(t, err)

	s := &server{
		router:   gin.New(),
		sub:      &fakeSubmitter{},
		outputs:  outputs,
		recorder: history.NewMemoryRecorder(time.Hour),
		mirror:   &fakeMirror{objects: map[string]string{}},
	}
	h := handlers.NewHandlers(s.sub, reg, handlers.Config{
		Outputs:        outputs,
		Mirror:         s.mirror,
		Recorder:       s.recorder,
		MaxUploadBytes: maxUpload,
	}, logger.NewTestLogger())
	routes.SetupRoutes(s.router, h, logger.NewTestLogger())
	return s
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, path, kind, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("type", kind))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestConvertSuccess(t *testing.T) {
	for _, prefix := range routes.Prefixes {
		t.Run(prefix, func(t *testing.T) {
			s := newServer(t, 1024)
			s.sub.outcome = &conversion.Outcome{
				ConversionResult: &models.ConversionResult{
					JobID:       "job-1",
					Kind:        models.KindWordToPDF,
					OutputPaths: []string{"/srv/outputs/20240101_000000_abcd1234_report_converted.pdf"},
					Duration:    1500 * time.Millisecond,
				},
				Download: "20240101_000000_abcd1234_report_converted.pdf",
			}

			w := s.do(uploadRequest(t, prefix+"/convert", "word2pdf", "report.docx", []byte("docx")))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp handlers.ConvertResponse
			decode(t, w, &resp)
			assert.True(t, resp.Success)
			assert.Equal(t, prefix+"/download/20240101_000000_abcd1234_report_converted.pdf", resp.DownloadURL)
			assert.Equal(t, "job-1", resp.JobID)
			assert.Equal(t, int64(1500), resp.DurationMs)
			assert.Equal(t, []string{"20240101_000000_abcd1234_report_converted.pdf"}, resp.Outputs)

			assert.Equal(t, "word2pdf", s.sub.got.Kind)
			assert.Equal(t, "report.docx", s.sub.got.Filename)
			assert.Equal(t, []byte("docx"), s.sub.body)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestConvertErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{models.InvalidInput(nil, "unsupported file format"), http.StatusBadRequest, "invalid_input"},
		{models.NoTablesFound("no tables found in scan.pdf"), http.StatusUnprocessableEntity, "no_tables_found"},
		{models.MissingDependency(nil, "LibreOffice is not installed"), http.StatusServiceUnavailable, "missing_dependency"},
		{models.Timeout(nil, "timed out"), http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "engine_failure"},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			s := newServer(t, 1024)
			s.sub.err = tc.err

			w := s.do(uploadRequest(t, "/api/convert", "word2pdf", "a.docx", []byte("x")))
			assert.Equal(t, tc.status, w.Code)

			var resp handlers.ErrorResponse
			decode(t, w, &resp)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.reason, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestConvertWithoutFile(t *testing.T) {
	s := newServer(t, 1024)

	w := s.do(uploadRequest(t, "/api/convert", "word2pdf", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp handlers.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "invalid_input", resp.Error)
	assert.Empty(t, s.sub.got.Filename, "orchestrator not called")
}

func TestConvertBodyTooLarge(t *testing.T) {
	s := newServer(t, 16)

	big := bytes.Repeat([]byte("x"), 2<<20)
	w := s.do(uploadRequest(t, "/api/convert", "pdf2img", "big.pdf", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDownloadLocalFile(t *testing.T) {
	s := newServer(t, 0)
	name := "x_converted.pdf"
	content := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
	require.NoError(t, os.WriteFile(filepath.Join(s.outputs.Dir(), name), content, 0644))

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/download/"+name, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), name)
}

func TestDownloadFallsBackToMirror(t *testing.T) {
	s := newServer(t, 0)
	s.mirror.objects["old_converted.pdf"] = "%PDF-1.4 mirrored"

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/download/old_converted.pdf", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 mirrored", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "old_converted.pdf")
}

func TestDownloadMissing(t *testing.T) {
	s := newServer(t, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/download/nope.pdf", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp handlers.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "not_found", resp.Error)
}

func TestJob(t *testing.T) {
	s := newServer(t, 0)
	require.NoError(t, s.recorder.Save(context.Background(), &history.Record{
		JobID:   "job-9",
		Kind:    models.KindPDFToImage,
		Status:  models.StatusCompleted,
		Outputs: []string{"a_page_1.jpg", "a_page_2.jpg"},
	}))

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-9", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rec history.Record
	decode(t, w, &rec)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Len(t, rec.Outputs, 2)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInfoAndHealth(t *testing.T) {
	s := newServer(t, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]map[string]handlers.KindInfo
	decode(t, w, &info)
	require.Contains(t, info, "to_pdf")
	require.Contains(t, info, "from_pdf")
	assert.Equal(t, "Word to PDF", info["to_pdf"]["word2pdf"].Name)
	assert.Equal(t, []string{".docx", ".doc"}, info["to_pdf"]["word2pdf"].Formats)
	assert.True(t, info["from_pdf"]["pdf2img"].MultiOutput)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","kinds":2}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusFor(models.ReasonEngineFailure))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusFor(""))
}
