package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversionKind 转换类型
type ConversionKind string

const (
	KindWordToPDF  ConversionKind = "word2pdf"
	KindPPTToPDF   ConversionKind = "ppt2pdf"
	KindExcelToPDF ConversionKind = "excel2pdf"
	KindImageToPDF ConversionKind = "img2pdf"
	KindHTMLToPDF  ConversionKind = "html2pdf"
	KindPDFToWord  ConversionKind = "pdf2word"
	KindPDFToPPT   ConversionKind = "pdf2ppt"
	KindPDFToImage ConversionKind = "pdf2img"
	KindPDFToExcel ConversionKind = "pdf2excel"
)

var allKinds = []ConversionKind{
	KindWordToPDF,
	KindPPTToPDF,
	KindExcelToPDF,
	KindImageToPDF,
	KindHTMLToPDF,
	KindPDFToWord,
	KindPDFToPPT,
	KindPDFToImage,
	KindPDFToExcel,
}

// Kinds returns every supported kind in display order.
func Kinds() []ConversionKind {
	kinds := make([]ConversionKind, len(allKinds))
	copy(kinds, allKinds)
	return kinds
}

// ParseKind maps a user supplied identifier onto a known kind.
func ParseKind(s string) (ConversionKind, error) {
	k := ConversionKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", InvalidInput(fmt.Errorf("%w: %q", ErrUnknownKind, s), "unknown conversion type %q", s)
}

func (k ConversionKind) String() string { return string(k) }

// ConversionJob describes one conversion request. It is not modified after
// creation and never outlives the request that created it.
type ConversionJob struct {
	ID           string         `json:"id"`
	Kind         ConversionKind `json:"kind"`
	InputPath    string         `json:"inputPath"`
	OutputPath   string         `json:"outputPath,omitempty"`
	OriginalName string         `json:"originalName,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// NewJob creates a job with a fresh id.
func NewJob(kind ConversionKind, input, output, originalName string) *ConversionJob {
	return &ConversionJob{
		ID:           uuid.New().String(),
		Kind:         kind,
		InputPath:    input,
		OutputPath:   output,
		OriginalName: originalName,
		CreatedAt:    time.Now(),
	}
}

// ConversionResult 转换结果
type ConversionResult struct {
	JobID       string         `json:"jobId"`
	Kind        ConversionKind `json:"kind"`
	OutputPaths []string       `json:"outputPaths"`
	Duration    time.Duration  `json:"duration"`
}

// Primary returns the first produced file.
func (r *ConversionResult) Primary() string {
	if r == nil || len(r.OutputPaths) == 0 {
		return ""
	}
	return r.OutputPaths[0]
}

// JobStatus 任务状态
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)
