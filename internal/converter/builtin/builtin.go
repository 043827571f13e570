// Package builtin registers the nine supported conversion kinds.
package builtin

import (
	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/converter"
	"github.com/feichai0017/document-converter/internal/converter/frompdf"
	"github.com/feichai0017/document-converter/internal/converter/topdf"
	"github.com/feichai0017/document-converter/internal/engine"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// New builds the registry from the engine configuration.
func New(cfg *config.Config, log logger.Logger) (*converter.Registry, error) {
	if log == nil {
		log = logger.NewNop()
	}
	ec := cfg.Engines

	office := func() engine.AutomationEngine {
		return engine.NewLibreOffice(engine.LibreOfficeConfig{
			Path:    ec.SofficePath,
			Timeout: ec.CommandTimeout,
		})
	}
	pdfImport := func() engine.AutomationEngine {
		return engine.NewLibreOffice(engine.LibreOfficeConfig{
			Path:        ec.SofficePath,
			InputFilter: "writer_pdf_import",
			Timeout:     ec.CommandTimeout,
		})
	}
	rasterizer := NewRasterizer(ec)
	tabula := &engine.Tabula{JavaPath: ec.JavaPath, JarPath: ec.TabulaJar, Timeout: ec.CommandTimeout}
	html := &engine.Wkhtmltopdf{Path: ec.WkhtmltopdfPath, Timeout: ec.CommandTimeout}

	log = log.Named("converter")
	return converter.NewRegistry(
		converter.Descriptor{
			Kind:              models.KindWordToPDF,
			Name:              "Word to PDF",
			Group:             converter.GroupToPDF,
			Extensions:        topdf.WordExtensions,
			OutputExt:         ".pdf",
			RequiresIsolation: true,
			Converter:         topdf.NewOfficeConverter(topdf.WordExtensions, topdf.EngineFactory(office)),
		},
		converter.Descriptor{
			Kind:              models.KindPPTToPDF,
			Name:              "PowerPoint to PDF",
			Group:             converter.GroupToPDF,
			Extensions:        topdf.PresentationExtensions,
			OutputExt:         ".pdf",
			RequiresIsolation: true,
			Converter:         topdf.NewOfficeConverter(topdf.PresentationExtensions, topdf.EngineFactory(office)),
		},
		converter.Descriptor{
			Kind:              models.KindExcelToPDF,
			Name:              "Excel to PDF",
			Group:             converter.GroupToPDF,
			Extensions:        topdf.SpreadsheetExtensions,
			OutputExt:         ".pdf",
			RequiresIsolation: true,
			Converter:         topdf.NewOfficeConverter(topdf.SpreadsheetExtensions, topdf.EngineFactory(office)),
		},
		converter.Descriptor{
			Kind:       models.KindImageToPDF,
			Name:       "Image to PDF",
			Group:      converter.GroupToPDF,
			Extensions: topdf.ImageExtensions,
			OutputExt:  ".pdf",
			Converter:  topdf.NewImageConverter(log, imageOptions(ec)...),
		},
		converter.Descriptor{
			Kind:       models.KindHTMLToPDF,
			Name:       "HTML to PDF",
			Group:      converter.GroupToPDF,
			Extensions: topdf.HTMLExtensions,
			OutputExt:  ".pdf",
			Converter:  topdf.NewHTMLConverter(html),
		},
		converter.Descriptor{
			Kind:       models.KindPDFToWord,
			Name:       "PDF to Word",
			Group:      converter.GroupFromPDF,
			Extensions: frompdf.Extensions,
			OutputExt:  ".docx",
			Converter:  frompdf.NewWordConverter(frompdf.EngineFactory(pdfImport)),
		},
		converter.Descriptor{
			Kind:       models.KindPDFToPPT,
			Name:       "PDF to PowerPoint",
			Group:      converter.GroupFromPDF,
			Extensions: frompdf.Extensions,
			OutputExt:  ".pptx",
			Converter:  frompdf.NewPresentationConverter(log, rasterizer, ec.SlideDPI),
		},
		converter.Descriptor{
			Kind:        models.KindPDFToImage,
			Name:        "PDF to Image",
			Group:       converter.GroupFromPDF,
			Extensions:  frompdf.Extensions,
			OutputExt:   ".jpg",
			MultiOutput: true,
			Converter:   frompdf.NewImageConverter(log, rasterizer, ec.ImageDPI),
		},
		converter.Descriptor{
			Kind:       models.KindPDFToExcel,
			Name:       "PDF to Excel",
			Group:      converter.GroupFromPDF,
			Extensions: frompdf.Extensions,
			OutputExt:  ".xlsx",
			Converter:  frompdf.NewSpreadsheetConverter(log, tabula),
		},
	)
}

// imageOptions translates the image-to-PDF engine settings.
func imageOptions(ec config.EnginesConfig) []topdf.ImageOption {
	opts := []topdf.ImageOption{topdf.WithDPI(int(ec.ImagePDFDPI))}
	if ec.ImageMaxPx > 0 {
		opts = append(opts, topdf.WithPreprocessors(
			topdf.NewMaxSizeProcessor(ec.ImageMaxPx, ec.ImageMaxPx),
		))
	}
	return opts
}

// NewRasterizer picks the page renderer named by engines.rasterizer.
func NewRasterizer(ec config.EnginesConfig) engine.Rasterizer {
	if ec.Rasterizer == "fitz" {
		return &engine.FitzRasterizer{}
	}
	return &engine.PopplerRasterizer{Path: ec.PdftoppmPath, PdfinfoPath: ec.PdfinfoPath, Timeout: ec.CommandTimeout}
}

// FromEnv builds the registry from the configuration named by
// $DOCCONV_CONFIG. Isolated children start with it.
func FromEnv() (*converter.Registry, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, err
	}
	return New(cfg, nil)
}
