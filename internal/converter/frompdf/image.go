package frompdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/engine"
	"github.com/feichai0017/document-converter/pkg/logger"
)

const DefaultImageDPI = 300

// ImageConverter renders every page of a PDF to its own image file.
type ImageConverter struct {
	logger     logger.Logger
	rasterizer engine.Rasterizer
	dpi        int
}

func NewImageConverter(log logger.Logger, rasterizer engine.Rasterizer, dpi int) *ImageConverter {
	if log == nil {
		log = logger.NewNop()
	}
	if dpi <= 0 {
		dpi = DefaultImageDPI
	}
	return &ImageConverter{logger: log, rasterizer: rasterizer, dpi: dpi}
}

// PagePath names the image for page n. With an explicit output the page
// suffix goes before its extension (".jpg" when it has none); otherwise the
// input stem is used with ".jpg".
func PagePath(input, output string, n int) string {
	if output != "" {
		ext := filepath.Ext(output)
		stem := strings.TrimSuffix(output, ext)
		if ext == "" {
			ext = ".jpg"
		}
		return fmt.Sprintf("%s_page_%d%s", stem, n, ext)
	}
	return fmt.Sprintf("%s_page_%d.jpg", strings.TrimSuffix(input, filepath.Ext(input)), n)
}

// Convert writes one image per page, in page order. If any page fails, the
// pages already written by this call are removed and the error returned.
func (c *ImageConverter) Convert(ctx context.Context, input, output string) (paths []string, err error) {
	if err := document.Validate(input, Extensions); err != nil {
		return nil, err
	}

	pages, err := c.rasterizer.PageCount(ctx, input)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			for _, p := range paths {
				os.Remove(p)
			}
			paths = nil
		}
	}()

	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		dest := PagePath(input, output, n)
		if n == 1 {
			if err := document.EnsureDir(dest); err != nil {
				return paths, err
			}
		}
		format := engine.FormatForExt(filepath.Ext(dest))
		if err := c.rasterizer.RenderPage(ctx, input, n, c.dpi, format, dest); err != nil {
			c.logger.Warn("page render failed",
				logger.String("input", input),
				logger.Int("page", n),
				logger.Error(err),
			)
			// a failed render may leave a truncated file behind
			os.Remove(dest)
			return paths, err
		}
		paths = append(paths, dest)
	}

	c.logger.Debug("pdf rendered to images",
		logger.String("input", input),
		logger.Int("pages", pages),
		logger.Int("dpi", c.dpi),
	)
	return paths, nil
}
