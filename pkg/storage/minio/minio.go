package minio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
)

type MinioStorage struct {
	client     *minio.Client
	bucketName string
	prefix     string
	logger     logger.Logger
}

func (m *MinioStorage) key(name string) string {
	if strings.HasPrefix(name, m.prefix) {
		return name
	}
	return m.prefix + name
}

// Store implements Storage.Store
func (m *MinioStorage) Store(ctx context.Context, reader io.Reader, name string) (string, error) {
	key := m.key(name)
	br := bufio.NewReaderSize(reader, 3072)
	head, _ := br.Peek(3072)

	_, err := m.client.PutObject(ctx, m.bucketName, key, br, -1, minio.PutObjectOptions{
		ContentType: mimetype.Detect(head).String(),
	})
	if err != nil {
		m.logger.Error("Failed to store file to MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	return key, nil
}

// Get implements Storage.Get. The object is stat'ed first so a missing key
// fails here instead of on the first read.
func (m *MinioStorage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	key := m.key(name)
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err == nil {
		_, err = obj.Stat()
		if err != nil {
			obj.Close()
		}
	}
	if err != nil {
		m.logger.Warn("Failed to get file from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return obj, nil
}

// Delete implements Storage.Delete
func (m *MinioStorage) Delete(ctx context.Context, name string) error {
	key := m.key(name)
	err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		m.logger.Error("Failed to delete file from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// CleanupBefore implements Storage.CleanupBefore
func (m *MinioStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    m.prefix,
		Recursive: true,
	})

	for obj := range objectCh {
		if obj.Err != nil {
			m.logger.Error("Error listing objects",
				logger.String("bucket", m.bucketName),
				logger.Error(obj.Err),
			)
			continue
		}

		if obj.LastModified.Before(threshold) {
			if err := m.Delete(ctx, obj.Key); err != nil {
				continue
			}
			m.logger.Info("Deleted expired object",
				logger.String("key", obj.Key),
				logger.Time("lastModified", obj.LastModified),
			)
		}
	}

	return nil
}

func NewMinioStorage(ctx context.Context, c cfg.MinioConfig, prefix string, log logger.Logger) (*MinioStorage, error) {
	if c.Endpoint == "" || c.BucketName == "" {
		return nil, fmt.Errorf("minio mirror requires an endpoint and a bucket name")
	}
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, c.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, c.BucketName, minio.MakeBucketOptions{
			Region: c.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: c.BucketName,
		prefix:     prefix,
		logger:     log.Named("minio"),
	}, nil
}
