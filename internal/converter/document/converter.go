package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/document-converter/internal/models"
)

// Converter turns one input file into one or more output files.
type Converter interface {
	// Convert writes the converted document(s) and returns their paths in
	// order. An empty output means "next to the input, with the variant's
	// extension".
	Convert(ctx context.Context, input, output string) ([]string, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, input, output string) ([]string, error)

func (f ConverterFunc) Convert(ctx context.Context, input, output string) ([]string, error) {
	return f(ctx, input, output)
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// HasExt reports whether name carries one of exts (case-insensitive).
func HasExt(name string, exts []string) bool {
	ext := Ext(name)
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Validate checks that input exists, is a regular file and carries an accepted extension.
func Validate(input string, exts []string) error {
	info, err := os.Stat(input)
	if err != nil {
		if os.IsNotExist(err) {
			return models.InvalidInput(err, "file does not exist: %s", input)
		}
		return models.InvalidInput(err, "cannot access %s: %v", input, err)
	}
	if info.IsDir() {
		return models.InvalidInput(nil, "%s is a directory", input)
	}
	if !HasExt(input, exts) {
		return models.InvalidInput(nil, "unsupported file format %q, supported formats: %s",
			Ext(input), strings.Join(exts, ", "))
	}
	return nil
}

// OutputPath returns output when set, otherwise input with its extension
// replaced by ext.
func OutputPath(input, ext, output string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return models.EngineFailure(err, "create output directory: %v", err)
	}
	return nil
}
