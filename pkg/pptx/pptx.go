// Package pptx writes minimal PresentationML decks made of full-bleed
// picture slides.
package pptx

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EMU per inch.
const EMUPerInch = 914400

// Default slide size: 10 x 7.5 inches (4:3).
const (
	DefaultWidth  = 10 * EMUPerInch
	DefaultHeight = EMUPerInch * 15 / 2
)

type picture struct {
	data []byte
	ext  string
}

// Deck is an in-memory presentation. Slides are written in the order they
// are added.
type Deck struct {
	Width  int64
	Height int64
	slides []picture
}

// New returns an empty 10 x 7.5 in deck.
func New() *Deck {
	return &Deck{Width: DefaultWidth, Height: DefaultHeight}
}

// AddPictureSlide appends a blank slide holding one picture stretched to the
// full slide. ext is ".jpg", ".jpeg" or ".png".
func (d *Deck) AddPictureSlide(data []byte, ext string) error {
	ext = strings.ToLower(ext)
	switch ext {
	case ".jpg", ".jpeg":
		ext = ".jpeg"
	case ".png":
	default:
		return fmt.Errorf("pptx: unsupported picture type %q", ext)
	}
	d.slides = append(d.slides, picture{data: data, ext: ext})
	return nil
}

// AddPictureFile reads path and adds it as a slide.
func (d *Deck) AddPictureFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return d.AddPictureSlide(data, filepath.Ext(path))
}

// Len returns the number of slides.
func (d *Deck) Len() int {
	return len(d.slides)
}

// Save writes the deck to path.
func (d *Deck) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	return d.Write(f)
}

// Write encodes the deck as a .pptx archive.
func (d *Deck) Write(w io.Writer) error {
	if len(d.slides) == 0 {
		return errors.New("pptx: deck has no slides")
	}

	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", d.contentTypes()},
		{"_rels/.rels", rootRels},
		{"docProps/app.xml", appProps},
		{"docProps/core.xml", coreProps},
		{"ppt/presentation.xml", d.presentation()},
		{"ppt/_rels/presentation.xml.rels", d.presentationRels()},
		{"ppt/presProps.xml", presProps},
		{"ppt/viewProps.xml", viewProps},
		{"ppt/tableStyles.xml", tableStyles},
		{"ppt/theme/theme1.xml", theme},
		{"ppt/slideMasters/slideMaster1.xml", slideMaster},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRels},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayout},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRels},
	}
	for _, p := range parts {
		if err := writePart(zw, p.name, []byte(p.body)); err != nil {
			return err
		}
	}

	for i, s := range d.slides {
		n := i + 1
		media := fmt.Sprintf("image%d%s", n, s.ext)
		if err := writePart(zw, fmt.Sprintf("ppt/slides/slide%d.xml", n), []byte(d.slide(n))); err != nil {
			return err
		}
		if err := writePart(zw, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), []byte(fmt.Sprintf(slideRels, media))); err != nil {
			return err
		}
		if err := writePart(zw, "ppt/media/"+media, s.data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writePart(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("pptx: create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("pptx: write %s: %w", name, err)
	}
	return nil
}

func (d *Deck) contentTypes() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)
	b.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	b.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/presProps.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presProps+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/viewProps.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.viewProps+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/tableStyles.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.tableStyles+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`)
	for i := range d.slides {
		fmt.Fprintf(&b, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i+1)
	}
	b.WriteString(`</Types>`)
	return b.String()
}

// Relationship ids: rId1 is the master, rId2..rId5 are the fixed parts and
// slides start at rId6.
const firstSlideRel = 6

func (d *Deck) presentation() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<p:presentation xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" saveSubsetFonts="1">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	b.WriteString(`<p:sldIdLst>`)
	for i := range d.slides {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, firstSlideRel+i)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, d.Width, d.Height)
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func (d *Deck) presentationRels() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	b.WriteString(`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/presProps" Target="presProps.xml"/>`)
	b.WriteString(`<Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/viewProps" Target="viewProps.xml"/>`)
	b.WriteString(`<Relationship Id="rId4" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="theme/theme1.xml"/>`)
	b.WriteString(`<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/tableStyles" Target="tableStyles.xml"/>`)
	for i := range d.slides {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, firstSlideRel+i, i+1)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func (d *Deck) slide(n int) string {
	return fmt.Sprintf(slideTemplate, n+1, n, d.Width, d.Height)
}
