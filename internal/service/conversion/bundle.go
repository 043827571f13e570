package conversion

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// bundle zips files into dest, flat, in order.
func bundle(dest string, files []string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := addToZip(zw, path); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addToZip(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	// rasters are already compressed
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", hdr.Name, err)
	}
	_, err = io.Copy(w, f)
	return err
}
