package frompdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/engine"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/pptx"
)

const DefaultSlideDPI = 200

// PresentationConverter builds a deck with one full-slide picture per page.
type PresentationConverter struct {
	logger     logger.Logger
	rasterizer engine.Rasterizer
	dpi        int
}

func NewPresentationConverter(log logger.Logger, rasterizer engine.Rasterizer, dpi int) *PresentationConverter {
	if log == nil {
		log = logger.NewNop()
	}
	if dpi <= 0 {
		dpi = DefaultSlideDPI
	}
	return &PresentationConverter{logger: log, rasterizer: rasterizer, dpi: dpi}
}

func (c *PresentationConverter) Convert(ctx context.Context, input, output string) ([]string, error) {
	if err := document.Validate(input, Extensions); err != nil {
		return nil, err
	}
	output = document.OutputPath(input, ".pptx", output)
	if err := document.EnsureDir(output); err != nil {
		return nil, err
	}

	pages, err := c.rasterizer.PageCount(ctx, input)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "docconv-slides-*")
	if err != nil {
		return nil, models.EngineFailure(err, "failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	deck := pptx.New()
	for n := 1; n <= pages; n++ {
		if err := c.addPage(ctx, deck, input, tmpDir, n); err != nil {
			return nil, err
		}
	}

	if err := deck.Save(output); err != nil {
		return nil, models.EngineFailure(err, "failed to write presentation: %v", err)
	}

	c.logger.Debug("pdf converted to slides",
		logger.String("input", input),
		logger.Int("slides", deck.Len()),
	)
	return []string{output}, nil
}

// addPage renders page n to a temporary PNG, embeds it and removes the
// temporary file whatever happens.
func (c *PresentationConverter) addPage(ctx context.Context, deck *pptx.Deck, input, tmpDir string, n int) error {
	raster := filepath.Join(tmpDir, fmt.Sprintf("temp_page_%d.png", n))
	defer os.Remove(raster)

	if err := c.rasterizer.RenderPage(ctx, input, n, c.dpi, engine.FormatPNG, raster); err != nil {
		return err
	}
	if err := deck.AddPictureFile(raster); err != nil {
		return models.EngineFailure(err, "failed to add page %d: %v", n, err)
	}
	return nil
}
