// Package local keeps files in a flat directory, such as the upload holding
// area or the output area.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/feichai0017/document-converter/pkg/logger"
)

// ErrExists is returned by Store when the name is already taken.
var ErrExists = errors.New("file already exists")

// Storage is a directory. Ids are file names; paths returned by Store are
// absolute.
type Storage struct {
	dir    string
	logger logger.Logger
}

// New creates dir if needed.
func New(dir string, log logger.Logger) (*Storage, error) {
	if log == nil {
		log = logger.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", abs, err)
	}
	return &Storage{dir: abs, logger: log}, nil
}

// Dir returns the absolute directory.
func (s *Storage) Dir() string {
	return s.dir
}

// Path returns the absolute path for a file name. Only the base name is
// used, so ids can never escape the directory.
func (s *Storage) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(filepath.Clean("/"+name)))
}

// Store writes reader to a new file and returns its absolute path. It never
// overwrites an existing file.
func (s *Storage) Store(ctx context.Context, reader io.Reader, filename string) (string, error) {
	path := s.Path(filename)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%s: %w", filename, ErrExists)
		}
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return path, nil
}

// Get opens a file by name or path. Missing files yield an error matching
// fs.ErrNotExist.
func (s *Storage) Get(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// Exists reports whether a regular file with that name is present.
func (s *Storage) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Delete removes a file by name or path. Deleting a missing file is not an error.
func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// CleanupBefore removes regular files modified before threshold. Failures
// on single files are logged and skipped.
func (s *Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	_, err := s.Sweep(ctx, threshold)
	return err
}

// Sweep is CleanupBefore that also reports how many files were removed.
func (s *Storage) Sweep(ctx context.Context, threshold time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Error("Failed to delete expired file",
				logger.String("path", path),
				logger.Error(err),
			)
			continue
		}
		removed++
		s.logger.Info("Deleted expired file",
			logger.String("file", e.Name()),
			logger.Time("lastModified", info.ModTime()),
		)
	}
	return removed, nil
}
