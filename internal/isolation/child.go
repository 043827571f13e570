package isolation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/feichai0017/document-converter/internal/converter"
	"github.com/feichai0017/document-converter/internal/models"
)

// IsChild reports whether this process was started by a Wrapper. Every
// binary checks it first thing in main.
func IsChild() bool {
	return os.Getenv(EnvChild) == "1"
}

// RegistryFactory builds the registry inside the child.
type RegistryFactory func() (*converter.Registry, error)

// Main runs the child side on the process's standard streams and returns
// the exit code.
func Main(newRegistry RegistryFactory) int {
	reg, err := newRegistry()
	if err != nil {
		writeError(os.Stderr, models.EngineFailure(err, "isolated worker setup failed: %v", err))
		return 1
	}
	return RunChild(context.Background(), reg, os.Stdin, os.Stdout, os.Stderr)
}

// RunChild decodes one Request from stdin, runs the registered converter
// directly and reports the outcome through the markers.
func RunChild(ctx context.Context, reg *converter.Registry, stdin io.Reader, stdout, stderr io.Writer) int {
	var req Request
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		writeError(stderr, models.EngineFailure(err, "invalid isolation request: %v", err))
		return 1
	}

	d, err := reg.Lookup(req.Kind)
	if err != nil {
		writeError(stderr, models.Normalize(err))
		return 1
	}

	paths, err := d.Converter.Convert(ctx, req.Input, req.Output)
	if err != nil {
		writeError(stderr, models.Normalize(err))
		return 1
	}

	data, err := json.Marshal(paths)
	if err != nil {
		writeError(stderr, models.EngineFailure(err, "encode result: %v", err))
		return 1
	}
	fmt.Fprintf(stdout, "%s%s\n", ResultMarker, data)
	return 0
}

func writeError(w io.Writer, ce *models.ConversionError) {
	fmt.Fprintln(w, ce.Error())
	data, err := json.Marshal(childError{Reason: ce.Reason, Message: ce.Error()})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s%s\n", ErrorMarker, data)
}
