package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/storage/local"
	"github.com/feichai0017/document-converter/pkg/storage/minio"
	"github.com/feichai0017/document-converter/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage 接口定义
type Storage interface {
	// Store writes reader under filename and returns the id to fetch it with.
	Store(ctx context.Context, reader io.Reader, filename string) (string, error)
	Get(ctx context.Context, fileID string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	// CleanupBefore removes everything last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewLocal opens a directory-backed area.
func NewLocal(dir string, log logger.Logger) (*local.Storage, error) {
	return local.New(dir, log)
}

// NewMirror returns the object store configured in storage.mirror, or nil
// when mirroring is disabled.
func NewMirror(ctx context.Context, cfg *config.Config, log logger.Logger) (Storage, error) {
	switch StorageType(cfg.Storage.Mirror) {
	case "":
		return nil, nil
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, cfg.Storage.MirrorPrefix, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, cfg.Storage.MirrorPrefix, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Mirror)
	}
}
