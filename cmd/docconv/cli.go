package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/document-converter/internal/converter"
	"github.com/feichai0017/document-converter/internal/models"
)

// Runner executes a job without taking ownership of its input.
type Runner interface {
	Run(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error)
}

// Catalog resolves kinds for batch mode and help text.
type Catalog interface {
	Lookup(kind models.ConversionKind) (*converter.Descriptor, error)
	All() []converter.Descriptor
}

type options struct {
	kind       string
	input      string
	output     string
	dir        string
	configPath string
	verbose    bool
}

var errUsage = errors.New("usage")

// parseArgs accepts flags before, between and after the positional
// arguments, as in "docconv pdf2img report.pdf -o page.jpg".
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	var opts options
	fs := flag.NewFlagSet("docconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.output, "o", "", "output file (single file mode)")
	fs.StringVar(&opts.dir, "d", "", "convert every matching file in this directory")
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	fs.Usage = func() { usage(fs, stderr) }

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	switch {
	case len(positional) == 0:
		fs.Usage()
		return nil, errUsage
	case len(positional) > 2:
		fmt.Fprintf(stderr, "Error: unexpected arguments: %s\n", strings.Join(positional[2:], " "))
		return nil, errUsage
	}
	opts.kind = positional[0]
	if len(positional) == 2 {
		opts.input = positional[1]
	}
	if opts.input == "" && opts.dir == "" {
		fs.Usage()
		fmt.Fprintln(stderr, "\nError: specify an input file or use -d for a directory")
		return nil, errUsage
	}
	return &opts, nil
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage: docconv <kind> <input> [-o output]")
	fmt.Fprintln(w, "       docconv <kind> -d <directory>")
	fmt.Fprintln(w, "\nKinds:")
	for _, k := range models.Kinds() {
		fmt.Fprintf(w, "  %s\n", k)
	}
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}

// app runs conversions for the command line.
type app struct {
	runner  Runner
	catalog Catalog
	stdout  io.Writer
}

// convertFile converts one file and reports the outcome.
func (a *app) convertFile(ctx context.Context, kind models.ConversionKind, input, output string) bool {
	res, err := a.runner.Run(ctx, models.NewJob(kind, input, output, filepath.Base(input)))
	if err != nil {
		fmt.Fprintf(a.stdout, "✗ Conversion failed: %v\n", err)
		return false
	}
	fmt.Fprintf(a.stdout, "✓ Converted: %s\n", strings.Join(res.OutputPaths, ", "))
	return true
}

// batch converts every regular file in dir carrying an extension the kind
// accepts, in name order. It returns the success and failure counts.
func (a *app) batch(ctx context.Context, kind models.ConversionKind, dir string) (int, int, error) {
	desc, err := a.catalog.Lookup(kind)
	if err != nil {
		return 0, 0, err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, 0, models.InvalidInput(err, "%s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, models.InvalidInput(err, "cannot read %s: %v", dir, err)
	}

	fmt.Fprintf(a.stdout, "Converting files in %s...\n", dir)
	converted, failed := 0, 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !desc.Accepts(e.Name()) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(a.stdout, "\nProcessing: %s\n", e.Name())
		if a.convertFile(ctx, kind, filepath.Join(dir, e.Name()), "") {
			converted++
		} else {
			failed++
		}
	}

	fmt.Fprintln(a.stdout, "\nBatch conversion finished")
	fmt.Fprintf(a.stdout, "Succeeded: %d\n", converted)
	fmt.Fprintf(a.stdout, "Failed: %d\n", failed)
	return converted, failed, nil
}

// execute runs opts and returns the process exit code: 0 when everything
// converted, 1 otherwise.
func (a *app) execute(ctx context.Context, opts *options) int {
	kind, err := models.ParseKind(opts.kind)
	if err == nil {
		_, err = a.catalog.Lookup(kind)
	}
	if err != nil {
		fmt.Fprintf(a.stdout, "Error: %v\n", err)
		return 1
	}

	if opts.dir != "" {
		_, failed, err := a.batch(ctx, kind, opts.dir)
		if err != nil {
			fmt.Fprintf(a.stdout, "Error: %v\n", err)
			return 1
		}
		if failed > 0 {
			return 1
		}
		return 0
	}

	if !a.convertFile(ctx, kind, opts.input, opts.output) {
		return 1
	}
	return 0
}
