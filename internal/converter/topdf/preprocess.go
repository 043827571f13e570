package topdf

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor transforms a decoded image before it is embedded.
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// FlattenProcessor composites the image onto an opaque background, so
// transparent pixels come out as the background color instead of black.
type FlattenProcessor struct {
	background color.Color
}

func NewFlattenProcessor(background color.Color) *FlattenProcessor {
	if background == nil {
		background = color.White
	}
	return &FlattenProcessor{background: background}
}

func (p *FlattenProcessor) Process(img image.Image) (image.Image, error) {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), p.background)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0), nil
}

// MaxSizeProcessor scales images larger than the limit down, keeping the
// aspect ratio. Zero disables a dimension.
type MaxSizeProcessor struct {
	maxWidth  int
	maxHeight int
}

func NewMaxSizeProcessor(maxWidth, maxHeight int) *MaxSizeProcessor {
	return &MaxSizeProcessor{maxWidth: maxWidth, maxHeight: maxHeight}
}

func (p *MaxSizeProcessor) Process(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if (p.maxWidth == 0 || b.Dx() <= p.maxWidth) && (p.maxHeight == 0 || b.Dy() <= p.maxHeight) {
		return img, nil
	}
	return imaging.Fit(img, orUnbounded(p.maxWidth), orUnbounded(p.maxHeight), imaging.Lanczos), nil
}

func orUnbounded(n int) int {
	if n == 0 {
		return 1 << 30
	}
	return n
}
