package topdf

import (
	"context"
	"path/filepath"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/engine"
)

var HTMLExtensions = []string{".html", ".htm"}

// HTMLConverter prints HTML pages to PDF.
type HTMLConverter struct {
	renderer engine.HTMLRenderer
}

func NewHTMLConverter(renderer engine.HTMLRenderer) *HTMLConverter {
	return &HTMLConverter{renderer: renderer}
}

func (c *HTMLConverter) Convert(ctx context.Context, input, output string) ([]string, error) {
	if err := document.Validate(input, HTMLExtensions); err != nil {
		return nil, err
	}
	output = document.OutputPath(input, ".pdf", output)

	// relative links resolve against the page's own directory
	abs, err := filepath.Abs(input)
	if err != nil {
		abs = input
	}
	if err := c.renderer.RenderPDF(ctx, abs, output); err != nil {
		return nil, err
	}
	return []string{output}, nil
}
