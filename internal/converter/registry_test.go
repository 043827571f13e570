package converter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-converter/internal/converter/document"
	"github.com/feichai0017/document-converter/internal/models"
)

var noop = document.ConverterFunc(func(ctx context.Context, input, output string) ([]string, error) {
	return []string{output}, nil
})

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(
		Descriptor{Kind: models.KindHTMLToPDF, Group: GroupToPDF, Extensions: []string{".html"}, Converter: noop},
		Descriptor{Kind: models.KindPDFToWord, Group: GroupFromPDF, Extensions: []string{".pdf"}, Converter: noop},
	)
	require.NoError(t, err)

	d, err := reg.Lookup(models.KindPDFToWord)
	require.NoError(t, err)
	assert.Equal(t, GroupFromPDF, d.Group)

	_, err = reg.Lookup("pdf2epub")
	require.Error(t, err)
	assert.True(t, models.IsReason(err, models.ReasonInvalidInput))
	assert.True(t, errors.Is(err, models.ErrUnknownKind))
	assert.Contains(t, err.Error(), "html2pdf, pdf2word")

	assert.True(t, reg.Accepts(models.KindHTMLToPDF, "x.HTML"))
	assert.False(t, reg.Accepts(models.KindHTMLToPDF, "x.pdf"))
	assert.False(t, reg.Accepts("nope", "x.pdf"))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Descriptor{Kind: models.KindHTMLToPDF, Converter: noop},
		Descriptor{Kind: models.KindHTMLToPDF, Converter: noop},
	)
	assert.Error(t, err)

	_, err = NewRegistry(Descriptor{Kind: models.KindHTMLToPDF})
	assert.Error(t, err)
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg, err := NewRegistry(Descriptor{
		Kind:       models.KindHTMLToPDF,
		Name:       "HTML to PDF",
		Group:      GroupToPDF,
		Extensions: []string{".html"},
		OutputExt:  ".pdf",
		Converter:  noop,
	})
	require.NoError(t, err)

	all := reg.All()
	all[0].Name = "changed"
	all[0].Extensions[0] = ".exe"
	all[0].RequiresIsolation = true

	groups := reg.Groups()
	groups[GroupToPDF][0].OutputExt = ".zip"

	d, err := reg.Lookup(models.KindHTMLToPDF)
	require.NoError(t, err)
	d.Extensions = append(d.Extensions[:0], ".bin")

	d, err = reg.Lookup(models.KindHTMLToPDF)
	require.NoError(t, err)
	assert.Equal(t, "HTML to PDF", d.Name)
	assert.Equal(t, []string{".html"}, d.Extensions)
	assert.Equal(t, ".pdf", d.OutputExt)
	assert.False(t, d.RequiresIsolation)
	assert.True(t, reg.Accepts(models.KindHTMLToPDF, "page.html"))
	assert.False(t, reg.Accepts(models.KindHTMLToPDF, "page.exe"))
}
