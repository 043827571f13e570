// Package frompdf holds the converters that take a PDF as input.
package frompdf

import (
	"context"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/engine"
)

// Extensions accepted by every converter in this package.
var Extensions = []string{".pdf"}

// EngineFactory opens a fresh automation session per conversion.
type EngineFactory func() engine.AutomationEngine

// WordConverter reconstructs an editable .docx from a PDF.
type WordConverter struct {
	newEngine EngineFactory
}

func NewWordConverter(newEngine EngineFactory) *WordConverter {
	return &WordConverter{newEngine: newEngine}
}

// DocxFormat is the LibreOffice export filter for Word 2007+ documents.
const DocxFormat = `docx:"MS Word 2007 XML"`

func (c *WordConverter) Convert(ctx context.Context, input, output string) ([]string, error) {
	if err := document.Validate(input, Extensions); err != nil {
		return nil, err
	}
	output = document.OutputPath(input, ".docx", output)
	if err := document.EnsureDir(output); err != nil {
		return nil, err
	}

	eng := c.newEngine()
	if err := eng.Open(ctx, input); err != nil {
		return nil, err
	}
	defer eng.Close()

	if err := eng.Export(ctx, output, DocxFormat); err != nil {
		return nil, err
	}
	return []string{output}, nil
}
