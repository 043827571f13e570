package topdf

import (
	"context"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/engine"
)

var (
	WordExtensions         = []string{".docx", ".doc"}
	PresentationExtensions = []string{".pptx", ".ppt"}
	SpreadsheetExtensions  = []string{".xlsx", ".xls"}
)

// EngineFactory opens a fresh automation session per conversion.
type EngineFactory func() engine.AutomationEngine

// OfficeConverter exports Word, PowerPoint and Excel documents to PDF
// through an office automation engine.
type OfficeConverter struct {
	exts      []string
	newEngine EngineFactory
}

func NewOfficeConverter(exts []string, newEngine EngineFactory) *OfficeConverter {
	return &OfficeConverter{exts: exts, newEngine: newEngine}
}

func (c *OfficeConverter) Convert(ctx context.Context, input, output string) ([]string, error) {
	if err := document.Validate(input, c.exts); err != nil {
		return nil, err
	}
	output = document.OutputPath(input, ".pdf", output)
	if err := document.EnsureDir(output); err != nil {
		return nil, err
	}

	eng := c.newEngine()
	if err := eng.Open(ctx, input); err != nil {
		return nil, err
	}
	defer eng.Close()

	if err := eng.Export(ctx, output, "pdf"); err != nil {
		return nil, err
	}
	return []string{output}, nil
}
