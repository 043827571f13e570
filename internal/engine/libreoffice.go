package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/document-converter/internal/models"
)

// AutomationEngine is a stateful document host driven through
// open / export / close, the way office suites are automated.
type AutomationEngine interface {
	Open(ctx context.Context, input string) error
	Export(ctx context.Context, output, format string) error
	Close() error
}

const sofficeHint = "Install LibreOffice (https://www.libreoffice.org/download/) or set engines.soffice_path / SOFFICE_PATH."

var sofficeCandidates = []string{
	"/opt/homebrew/bin/soffice",
	"/Applications/LibreOffice.app/Contents/MacOS/soffice",
	"/usr/bin/libreoffice",
	"/usr/bin/soffice",
	"/usr/lib/libreoffice/program/soffice",
	`C:\Program Files\LibreOffice\program\soffice.exe`,
	"soffice",
	"libreoffice",
}

// LibreOfficeConfig configures a LibreOffice session.
type LibreOfficeConfig struct {
	Path string
	// InputFilter forces the import filter, e.g. "writer_pdf_import".
	InputFilter string
	Timeout     time.Duration
}

// LibreOffice drives a headless soffice. Every session gets its own user
// profile so concurrent sessions never share the profile lock.
type LibreOffice struct {
	cfg     LibreOfficeConfig
	tool    *Tool
	input   string
	workDir string
}

// NewLibreOffice returns an unopened session.
func NewLibreOffice(cfg LibreOfficeConfig) *LibreOffice {
	return &LibreOffice{cfg: cfg}
}

func (l *LibreOffice) Open(ctx context.Context, input string) error {
	tool, err := LookupTool("LibreOffice", l.cfg.Path, sofficeHint, sofficeCandidates...)
	if err != nil {
		return err
	}
	l.tool = tool

	abs, err := filepath.Abs(input)
	if err != nil {
		return models.InvalidInput(err, "failed to get absolute path for input: %v", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return models.InvalidInput(err, "file does not exist: %s", abs)
	}
	l.input = abs

	workDir, err := os.MkdirTemp("", "docconv-soffice-*")
	if err != nil {
		return models.EngineFailure(err, "failed to create LibreOffice work directory: %v", err)
	}
	l.workDir = workDir
	return nil
}

// Export converts the opened document. format is a LibreOffice
// --convert-to target such as "pdf" or `docx:"MS Word 2007 XML"`.
func (l *LibreOffice) Export(ctx context.Context, output, format string) error {
	if l.tool == nil || l.input == "" {
		return models.EngineFailure(nil, "LibreOffice session is not open")
	}

	outDir := filepath.Join(l.workDir, "out")
	args := []string{
		"-env:UserInstallation=" + fileURL(filepath.Join(l.workDir, "profile")),
		"--headless",
		"--norestore",
	}
	if l.cfg.InputFilter != "" {
		args = append(args, "--infilter="+l.cfg.InputFilter)
	}
	args = append(args, "--convert-to", format, "--outdir", outDir, l.input)

	out, err := l.tool.Run(ctx, l.cfg.Timeout, nil, args...)
	if err != nil {
		return err
	}

	ext := format
	if i := strings.Index(ext, ":"); i >= 0 {
		ext = ext[:i]
	}
	stem := strings.TrimSuffix(filepath.Base(l.input), filepath.Ext(l.input))
	produced := filepath.Join(outDir, stem+"."+ext)
	if !nonEmptyFile(produced) {
		return missingOutput("LibreOffice", produced, out)
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		return models.EngineFailure(err, "failed to get absolute path for output: %v", err)
	}
	if err := moveFile(produced, abs); err != nil {
		return models.EngineFailure(err, "failed to move LibreOffice output to %s: %v", abs, err)
	}
	return nil
}

// fileURL turns an absolute path into a file URL. Drive-letter paths get
// the extra leading slash LibreOffice expects.
func fileURL(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func (l *LibreOffice) Close() error {
	if l.workDir == "" {
		return nil
	}
	err := os.RemoveAll(l.workDir)
	l.workDir = ""
	l.input = ""
	if err != nil {
		return fmt.Errorf("remove LibreOffice work directory: %w", err)
	}
	return nil
}
