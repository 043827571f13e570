package s3

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	cfg "github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/pkg/logger"
)

type S3Storage struct {
	client     *s3.Client
	bucketName string
	prefix     string
	logger     logger.Logger
}

func (s *S3Storage) key(name string) string {
	if strings.HasPrefix(name, s.prefix) {
		return name
	}
	return s.prefix + name
}

// Store 实现 Storage 接口的 Store 方法
func (s *S3Storage) Store(ctx context.Context, reader io.Reader, name string) (string, error) {
	key := s.key(name)
	body, contentType := sniff(reader)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		s.logger.Error("Failed to store file to S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	return key, nil
}

// Get 实现 Storage 接口的 Get 方法
func (s *S3Storage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		s.logger.Warn("Failed to get file from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return result.Body, nil
}

// Delete 实现 Storage 接口的 Delete 方法
func (s *S3Storage) Delete(ctx context.Context, name string) error {
	key := s.key(name)
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}

	_, err := s.client.DeleteObject(ctx, input)
	if err != nil {
		s.logger.Error("Failed to delete file from S3",
			logger.String("bucket", s.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// CleanupBefore removes mirrored outputs older than threshold. Only keys
// under the mirror prefix are considered.
func (s *S3Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(s.prefix),
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("Failed to list objects",
				logger.String("bucket", s.bucketName),
				logger.Error(err),
			)
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(threshold) {
				continue
			}
			if err := s.Delete(ctx, *obj.Key); err != nil {
				continue
			}
			s.logger.Info("Deleted expired object",
				logger.String("key", *obj.Key),
				logger.Time("lastModified", *obj.LastModified),
			)
		}
	}

	return nil
}

// NewS3Storage connects to the bucket and checks that it exists. A custom
// endpoint switches to path-style addressing for S3-compatible services.
func NewS3Storage(ctx context.Context, c cfg.S3Config, prefix string, log logger.Logger) (*S3Storage, error) {
	if c.BucketName == "" {
		return nil, fmt.Errorf("s3 mirror requires a bucket name")
	}

	log.Info("S3 Configuration",
		logger.String("bucket", c.BucketName),
		logger.String("region", c.Region),
		logger.String("endpoint", c.Endpoint),
	)

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	// 验证 bucket 是否存在
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.BucketName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	return &S3Storage{
		client:     client,
		bucketName: c.BucketName,
		prefix:     prefix,
		logger:     log.Named("s3"),
	}, nil
}

// sniff peeks at the head of r for the content type without consuming it.
func sniff(r io.Reader) (io.Reader, string) {
	br := bufio.NewReaderSize(r, 3072)
	head, _ := br.Peek(3072)
	return br, mimetype.Detect(head).String()
}
