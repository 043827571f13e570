package frompdf

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/engine"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// SpreadsheetConverter writes every table found in a PDF to its own sheet.
type SpreadsheetConverter struct {
	logger    logger.Logger
	extractor engine.TableExtractor
}

func NewSpreadsheetConverter(log logger.Logger, extractor engine.TableExtractor) *SpreadsheetConverter {
	if log == nil {
		log = logger.NewNop()
	}
	return &SpreadsheetConverter{logger: log, extractor: extractor}
}

func (c *SpreadsheetConverter) Convert(ctx context.Context, input, output string) ([]string, error) {
	if err := document.Validate(input, Extensions); err != nil {
		return nil, err
	}
	output = document.OutputPath(input, ".xlsx", output)

	tables, err := c.extractor.ExtractTables(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, models.NoTablesFound("no tables found in %s", filepath.Base(input))
	}

	if err := document.EnsureDir(output); err != nil {
		return nil, err
	}
	if err := WriteWorkbook(output, tables); err != nil {
		return nil, err
	}

	c.logger.Debug("tables written to workbook",
		logger.String("input", input),
		logger.Int("tables", len(tables)),
	)
	return []string{output}, nil
}

// WriteWorkbook stores table i on sheet "Sheet<i>", starting at A1.
func WriteWorkbook(path string, tables []engine.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, table := range tables {
		sheet := fmt.Sprintf("Sheet%d", i+1)
		// a new workbook already holds Sheet1
		if i > 0 {
			if _, err := f.NewSheet(sheet); err != nil {
				return models.EngineFailure(err, "failed to add sheet %s: %v", sheet, err)
			}
		}
		for r, row := range table {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return models.EngineFailure(err, "invalid cell: %v", err)
			}
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = v
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return models.EngineFailure(err, "failed to write %s!%s: %v", sheet, cell, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return models.EngineFailure(err, "failed to save workbook: %v", err)
	}
	return nil
}
