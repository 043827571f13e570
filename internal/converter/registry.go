// Package converter maps conversion kinds to the converters that implement
// them.
package converter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
)

// Group tells whether a kind produces or consumes PDF.
type Group string

const (
	GroupToPDF   Group = "to_pdf"
	GroupFromPDF Group = "from_pdf"
)

// Descriptor is everything callers need to know about one kind.
type Descriptor struct {
	Kind       models.ConversionKind
	Name       string
	Group      Group
	Extensions []string
	OutputExt  string
	// RequiresIsolation marks kinds whose engine can hang on a modal dialog
	// and must run in a child process.
	RequiresIsolation bool
	// MultiOutput kinds may produce more than one file.
	MultiOutput bool
	Converter   document.Converter
}

// Accepts reports whether filename carries one of the descriptor's extensions.
func (d *Descriptor) Accepts(filename string) bool {
	return document.HasExt(filename, d.Extensions)
}

func (d *Descriptor) clone() Descriptor {
	c := *d
	c.Extensions = slices.Clone(d.Extensions)
	return c
}

// Registry holds one descriptor per kind. It is built once and read-only
// afterwards, so it is safe for concurrent use.
type Registry struct {
	descriptors []*Descriptor
	byKind      map[models.ConversionKind]*Descriptor
}

// NewRegistry indexes descs. Duplicate kinds are rejected.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byKind: make(map[models.ConversionKind]*Descriptor, len(descs))}
	for i := range descs {
		d := descs[i]
		if d.Converter == nil {
			return nil, fmt.Errorf("converter for %s is nil", d.Kind)
		}
		if _, dup := r.byKind[d.Kind]; dup {
			return nil, fmt.Errorf("kind %s registered twice", d.Kind)
		}
		r.descriptors = append(r.descriptors, &d)
		r.byKind[d.Kind] = &d
	}
	return r, nil
}

// Lookup returns a copy of the descriptor for kind, or an InvalidInput
// error for an unknown kind.
func (r *Registry) Lookup(kind models.ConversionKind) (*Descriptor, error) {
	d, ok := r.byKind[kind]
	if !ok {
		return nil, models.InvalidInput(models.ErrUnknownKind, "unsupported conversion type %q, supported: %s",
			kind, strings.Join(r.kindNames(), ", "))
	}
	c := d.clone()
	return &c, nil
}

// Accepts reports whether kind exists and takes filename.
func (r *Registry) Accepts(kind models.ConversionKind, filename string) bool {
	d, ok := r.byKind[kind]
	return ok && d.Accepts(filename)
}

// All returns copies of the descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = d.clone()
	}
	return out
}

// Groups splits copies of the descriptors by group, preserving order.
func (r *Registry) Groups() map[Group][]Descriptor {
	groups := make(map[Group][]Descriptor)
	for _, d := range r.descriptors {
		groups[d.Group] = append(groups[d.Group], d.clone())
	}
	return groups
}

func (r *Registry) kindNames() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = string(d.Kind)
	}
	return names
}
