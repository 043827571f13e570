package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/internal/service/conversion"
	"github.com/feichai0017/document-converter/internal/service/history"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage"
)

// multipartOverhead is the slack allowed on top of the file limit for the
// multipart envelope and the other form fields.
const multipartOverhead = 1 << 20

// sniffLen is how much of a mirrored object is read to detect its type.
const sniffLen = 3072

// Submitter runs uploads to completion.
type Submitter interface {
	Submit(ctx context.Context, up conversion.Upload) (*conversion.Outcome, error)
}

// OutputArea resolves deliverable names to local paths.
type OutputArea interface {
	Path(name string) string
}

type ConversionHandler struct {
	orch      Submitter
	outputs   OutputArea
	mirror    storage.Storage
	recorder  history.Recorder
	maxUpload int64
	logger    logger.Logger
}

// ConvertResponse 定义转换响应结构
type ConvertResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	DownloadURL string   `json:"download_url"`
	Filename    string   `json:"filename"`
	JobID       string   `json:"job_id"`
	Outputs     []string `json:"outputs"`
	DurationMs  int64    `json:"duration_ms"`
}

func NewConversionHandler(orch Submitter, cfg Config, log logger.Logger) *ConversionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = history.NopRecorder{}
	}
	return &ConversionHandler{
		orch:      orch,
		outputs:   cfg.Outputs,
		mirror:    cfg.Mirror,
		recorder:  recorder,
		maxUpload: cfg.MaxUploadBytes,
		logger:    log.Named("api"),
	}
}

// Convert 处理单个文件转换
func (h *ConversionHandler) Convert(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(c, h.logger, http.StatusRequestEntityTooLarge,
				models.InvalidInput(err, "file exceeds the limit of %d bytes", h.maxUpload))
		case errors.Is(err, http.ErrMissingFile):
			writeError(c, h.logger, 0, models.InvalidInput(err, "no file uploaded"))
		default:
			writeError(c, h.logger, 0, models.InvalidInput(err, "invalid file upload: %v", err))
		}
		return
	}
	defer file.Close()

	out, err := h.orch.Submit(c.Request.Context(), conversion.Upload{
		Filename: header.Filename,
		Kind:     c.PostForm("type"),
		Size:     header.Size,
		Reader:   file,
	})
	if err != nil {
		writeError(c, h.logger, 0, err)
		return
	}

	outputs := make([]string, 0, len(out.OutputPaths))
	for _, p := range out.OutputPaths {
		outputs = append(outputs, filepath.Base(p))
	}
	c.JSON(http.StatusOK, ConvertResponse{
		Success:     true,
		Message:     "Conversion successful",
		DownloadURL: downloadURL(c, out.Download),
		Filename:    out.Download,
		JobID:       out.JobID,
		Outputs:     outputs,
		DurationMs:  out.Duration.Milliseconds(),
	})
}

// downloadURL points at the download route of the group that served c.
func downloadURL(c *gin.Context, name string) string {
	base := strings.TrimSuffix(c.FullPath(), "/convert")
	return base + "/download/" + name
}

// Download 下载转换结果. Files swept from the output area are served from
// the mirror when one is configured.
func (h *ConversionHandler) Download(c *gin.Context) {
	name := filepath.Base(filepath.Clean("/" + c.Param("filename")))
	if name == "/" || name == "." {
		h.notFound(c, c.Param("filename"))
		return
	}

	path := h.outputs.Path(name)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		if mt, err := mimetype.DetectFile(path); err == nil {
			c.Header("Content-Type", mt.String())
		}
		c.FileAttachment(path, name)
		return
	}

	if h.mirror != nil {
		rc, err := h.mirror.Get(c.Request.Context(), name)
		if err == nil {
			defer rc.Close()
			br := bufio.NewReaderSize(rc, sniffLen)
			head, _ := br.Peek(sniffLen)
			c.DataFromReader(http.StatusOK, -1, mimetype.Detect(head).String(), br, map[string]string{
				"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
			})
			return
		}
		logger.FromContext(c.Request.Context(), h.logger).Debug("Mirror lookup failed",
			logger.String("file", name),
			logger.Error(err),
		)
	}
	h.notFound(c, name)
}

func (h *ConversionHandler) notFound(c *gin.Context, name string) {
	c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: fmt.Sprintf("file does not exist: %s", name),
	})
}

// Job 获取任务记录
func (h *ConversionHandler) Job(c *gin.Context) {
	rec, err := h.recorder.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: fmt.Sprintf("job %s not found or expired", c.Param("id")),
		})
		return
	}
	if err != nil {
		writeError(c, h.logger, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
