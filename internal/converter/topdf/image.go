package topdf

import (
	"bytes"
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff"}

// DefaultImageDPI sizes the PDF page: a 1000 px wide image becomes a
// 10 in wide page.
const DefaultImageDPI = 100

// ImageConverter wraps a single raster image in a one-page PDF.
type ImageConverter struct {
	logger        logger.Logger
	dpi           int
	preprocessors []ImagePreprocessor
}

type ImageOption func(*ImageConverter)

func WithDPI(dpi int) ImageOption {
	return func(c *ImageConverter) {
		if dpi > 0 {
			c.dpi = dpi
		}
	}
}

// WithPreprocessors runs extra preprocessors after the background flatten.
func WithPreprocessors(p ...ImagePreprocessor) ImageOption {
	return func(c *ImageConverter) {
		c.preprocessors = append(c.preprocessors, p...)
	}
}

func NewImageConverter(log logger.Logger, opts ...ImageOption) *ImageConverter {
	if log == nil {
		log = logger.NewNop()
	}
	c := &ImageConverter{
		logger:        log,
		dpi:           DefaultImageDPI,
		preprocessors: []ImagePreprocessor{NewFlattenProcessor(color.White)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ImageConverter) Convert(ctx context.Context, input, output string) ([]string, error) {
	if err := document.Validate(input, ImageExtensions); err != nil {
		return nil, err
	}
	output = document.OutputPath(input, ".pdf", output)
	if err := document.EnsureDir(output); err != nil {
		return nil, err
	}

	img, err := imaging.Open(input, imaging.AutoOrientation(true))
	if err != nil {
		return nil, models.InvalidInput(err, "cannot decode image %s: %v", input, err)
	}
	for _, p := range c.preprocessors {
		if img, err = p.Process(img); err != nil {
			return nil, models.EngineFailure(err, "image preprocessing failed: %v", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.writePDF(img, output); err != nil {
		return nil, err
	}

	c.logger.Debug("image wrapped in PDF",
		logger.String("input", input),
		logger.String("output", output),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()),
	)
	return []string{output}, nil
}

func (c *ImageConverter) writePDF(img image.Image, output string) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return models.EngineFailure(err, "failed to encode image: %v", err)
	}

	// points per pixel at the configured resolution
	scale := 72.0 / float64(c.dpi)
	w := float64(img.Bounds().Dx()) * scale
	h := float64(img.Bounds().Dy()) * scale

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader("page", opts, &buf)
	pdf.ImageOptions("page", 0, 0, w, h, false, opts, 0, "")

	if err := pdf.OutputFileAndClose(output); err != nil {
		return models.EngineFailure(err, "failed to write PDF: %v", err)
	}
	return nil
}
