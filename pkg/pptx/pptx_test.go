package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckWrite(t *testing.T) {
	deck := New()
	require.NoError(t, deck.AddPictureSlide([]byte("jpeg-1"), ".jpg"))
	require.NoError(t, deck.AddPictureSlide([]byte("png-2"), ".PNG"))
	assert.Error(t, deck.AddPictureSlide([]byte("gif"), ".gif"))
	assert.Equal(t, 2, deck.Len())

	var buf bytes.Buffer
	require.NoError(t, deck.Write(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = data
	}

	assert.Equal(t, []byte("jpeg-1"), files["ppt/media/image1.jpeg"])
	assert.Equal(t, []byte("png-2"), files["ppt/media/image2.png"])
	assert.Contains(t, files, "ppt/slides/slide2.xml")
	assert.Contains(t, string(files["ppt/presentation.xml"]), `<p:sldSz cx="9144000" cy="6858000"/>`)
	assert.Contains(t, string(files["ppt/slides/_rels/slide2.xml.rels"]), "../media/image2.png")

	for name, data := range files {
		if filepath.Ext(name) != ".xml" && filepath.Ext(name) != ".rels" {
			continue
		}
		dec := xml.NewDecoder(bytes.NewReader(data))
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, name)
		}
	}
}

func TestDeckEmpty(t *testing.T) {
	assert.Error(t, New().Write(io.Discard))
}

func TestDeckSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	deck := New()
	require.NoError(t, deck.AddPictureSlide([]byte("x"), ".jpeg"))
	require.NoError(t, deck.Save(path))
	assert.FileExists(t, path)
}
