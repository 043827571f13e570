package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/document-converter/internal/models"
)

// ImageFormat is a raster output encoding.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
)

// FormatForExt picks the encoding for a file extension; anything that is
// not PNG is written as JPEG.
func FormatForExt(ext string) ImageFormat {
	if strings.EqualFold(ext, ".png") {
		return FormatPNG
	}
	return FormatJPEG
}

// Rasterizer renders PDF pages to image files. Pages are 1-indexed.
type Rasterizer interface {
	PageCount(ctx context.Context, pdfPath string) (int, error)
	RenderPage(ctx context.Context, pdfPath string, page, dpi int, format ImageFormat, dest string) error
}

// pageCount reads the page tree with ledongthuc/pdf. The parser panics on
// some malformed files, so the panic is turned into an error.
func pageCount(pdfPath string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.EngineFailure(nil, "failed to parse PDF %s: %v", filepath.Base(pdfPath), r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, models.EngineFailure(err, "failed to open PDF %s: %v", filepath.Base(pdfPath), err)
	}
	defer f.Close()

	n = r.NumPage()
	if n == 0 {
		return 0, models.EngineFailure(nil, "PDF %s has no pages", filepath.Base(pdfPath))
	}
	return n, nil
}

const popplerHint = "Install poppler-utils (Linux: apt install poppler-utils, macOS: brew install poppler, Windows: https://github.com/oschwartz10612/poppler-windows/releases/) or set engines.pdftoppm_path."

// PopplerRasterizer renders with pdftoppm, one invocation per page.
type PopplerRasterizer struct {
	Path string
	// PdfinfoPath locates pdfinfo, used to count pages the in-process
	// parser cannot read.
	PdfinfoPath string
	Timeout     time.Duration
}

func (p *PopplerRasterizer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	n, err := pageCount(pdfPath)
	if err == nil {
		return n, nil
	}
	if n, ierr := p.pdfinfoPages(ctx, pdfPath); ierr == nil {
		return n, nil
	}
	return 0, err
}

func (p *PopplerRasterizer) pdfinfoPages(ctx context.Context, pdfPath string) (int, error) {
	tool, err := LookupTool("pdfinfo", p.PdfinfoPath, popplerHint, "pdfinfo", "/usr/bin/pdfinfo", "/opt/homebrew/bin/pdfinfo")
	if err != nil {
		return 0, err
	}
	out, err := tool.Run(ctx, p.Timeout, nil, pdfPath)
	if err != nil {
		return 0, err
	}
	return parsePdfinfoPages(out.Stdout)
}

// parsePdfinfoPages reads the "Pages:" line of pdfinfo output.
func parsePdfinfoPages(out []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "Pages:")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return 0, models.EngineFailure(err, "pdfinfo reported %q pages", strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, models.EngineFailure(nil, "pdfinfo output has no page count")
}

func (p *PopplerRasterizer) RenderPage(ctx context.Context, pdfPath string, page, dpi int, format ImageFormat, dest string) error {
	tool, err := LookupTool("pdftoppm", p.Path, popplerHint, "pdftoppm", "/usr/bin/pdftoppm", "/opt/homebrew/bin/pdftoppm")
	if err != nil {
		return err
	}

	flag, ext := "-jpeg", ".jpg"
	if format == FormatPNG {
		flag, ext = "-png", ".png"
	}
	prefix := strings.TrimSuffix(dest, filepath.Ext(dest))
	n := fmt.Sprintf("%d", page)

	out, err := tool.Run(ctx, p.Timeout, nil,
		"-f", n, "-l", n,
		"-r", fmt.Sprintf("%d", dpi),
		flag, "-singlefile",
		pdfPath, prefix,
	)
	if err != nil {
		return err
	}

	produced := prefix + ext
	if !nonEmptyFile(produced) {
		return missingOutput("pdftoppm", produced, out)
	}
	if produced != dest {
		if err := os.Rename(produced, dest); err != nil {
			return models.EngineFailure(err, "failed to rename page %d: %v", page, err)
		}
	}
	return nil
}

// FitzRasterizer renders with MuPDF through go-fitz, in process.
type FitzRasterizer struct {
	JPEGQuality int
}

func (f *FitzRasterizer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, models.EngineFailure(err, "failed to open PDF %s: %v", filepath.Base(pdfPath), err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

func (f *FitzRasterizer) RenderPage(ctx context.Context, pdfPath string, page, dpi int, format ImageFormat, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return models.EngineFailure(err, "failed to open PDF %s: %v", filepath.Base(pdfPath), err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return models.EngineFailure(nil, "page %d out of range (1-%d)", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return models.EngineFailure(err, "failed to render page %d: %v", page, err)
	}
	return f.encode(img, format, dest)
}

func (f *FitzRasterizer) encode(img image.Image, format ImageFormat, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return models.EngineFailure(err, "failed to create %s: %v", dest, err)
	}

	if format == FormatPNG {
		err = png.Encode(out, img)
	} else {
		quality := f.JPEGQuality
		if quality == 0 {
			quality = 90
		}
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: quality})
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return models.EngineFailure(err, "failed to encode %s: %v", dest, err)
	}
	return nil
}
