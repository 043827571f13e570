package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/feichai0017/document-converter/internal/models"
)

// Table is one extracted table, row-major, cells as text.
type Table [][]string

// TableExtractor finds tables in every page of a PDF.
type TableExtractor interface {
	ExtractTables(ctx context.Context, pdfPath string) ([]Table, error)
}

const tabulaHint = "Install a Java runtime and download tabula-java (https://github.com/tabulapdf/tabula-java/releases), then set engines.tabula_jar / TABULA_JAR."

// Tabula runs the tabula-java jar and parses its JSON output.
type Tabula struct {
	JavaPath string
	JarPath  string
	Timeout  time.Duration
}

type tabulaCell struct {
	Text string `json:"text"`
}

type tabulaTable struct {
	Data [][]tabulaCell `json:"data"`
}

func (t *Tabula) ExtractTables(ctx context.Context, pdfPath string) ([]Table, error) {
	if t.JarPath == "" {
		return nil, models.MissingDependency(nil, "tabula-java jar is not configured. %s", tabulaHint)
	}
	java, err := LookupTool("java", t.JavaPath, tabulaHint, "java")
	if err != nil {
		return nil, err
	}
	if _, err := LookupTool("tabula-java", t.JarPath, tabulaHint); err != nil {
		return nil, err
	}

	out, err := java.Run(ctx, t.Timeout, nil,
		"-Djava.awt.headless=true",
		"-jar", t.JarPath,
		"--format", "JSON",
		"--pages", "all",
		pdfPath,
	)
	if err != nil {
		return nil, err
	}
	return ParseTabulaJSON(out.Stdout)
}

// ParseTabulaJSON decodes tabula's JSON format. Tables whose cells are all
// blank are dropped.
func ParseTabulaJSON(data []byte) ([]Table, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var raw []tabulaTable
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, models.EngineFailure(err, "failed to parse tabula output: %v", err)
	}

	tables := make([]Table, 0, len(raw))
	for _, rt := range raw {
		table := make(Table, 0, len(rt.Data))
		blank := true
		for _, row := range rt.Data {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = c.Text
				if strings.TrimSpace(c.Text) != "" {
					blank = false
				}
			}
			table = append(table, cells)
		}
		if !blank {
			tables = append(tables, table)
		}
	}
	return tables, nil
}
