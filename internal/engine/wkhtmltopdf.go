package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/feichai0017/document-converter/internal/models"
)

// HTMLRenderer prints an HTML document to PDF.
type HTMLRenderer interface {
	RenderPDF(ctx context.Context, input, output string) error
}

const wkhtmltopdfHint = "Install wkhtmltopdf (https://wkhtmltopdf.org/downloads.html) or set engines.wkhtmltopdf_path / WKHTMLTOPDF_PATH."

var wkhtmltopdfCandidates = []string{
	"/usr/local/bin/wkhtmltopdf",
	"/usr/bin/wkhtmltopdf",
	"/opt/homebrew/bin/wkhtmltopdf",
	`C:\Program Files\wkhtmltopdf\bin\wkhtmltopdf.exe`,
	"wkhtmltopdf",
}

// Wkhtmltopdf renders with the wkhtmltopdf binary.
type Wkhtmltopdf struct {
	Path    string
	Timeout time.Duration
}

func (w *Wkhtmltopdf) RenderPDF(ctx context.Context, input, output string) error {
	tool, err := LookupTool("wkhtmltopdf", w.Path, wkhtmltopdfHint, wkhtmltopdfCandidates...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return models.EngineFailure(err, "create output directory: %v", err)
	}

	out, err := tool.Run(ctx, w.Timeout, nil,
		"--quiet",
		"--enable-local-file-access",
		"--encoding", "utf-8",
		input, output,
	)
	if err != nil {
		// wkhtmltopdf exits 1 when a sub-resource fails to load even though
		// the PDF was written.
		if models.IsReason(err, models.ReasonEngineFailure) && nonEmptyFile(output) {
			return nil
		}
		return err
	}
	if !nonEmptyFile(output) {
		return missingOutput("wkhtmltopdf", output, out)
	}
	return nil
}
