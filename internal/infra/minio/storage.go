package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Storage struct {
	client *miniogo.Client
	bucket string
	logger *zap.Logger
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func NewStorage(cfg StorageConfig, logger *zap.Logger) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// SaveFile writes data under subfolder with a collision-resistant object
// name (timestamp + random suffix) and returns the object key.
func (s *Storage) SaveFile(ctx context.Context, data []byte, suggestedName, subfolder string) (string, error) {
	objectKey := fmt.Sprintf("%s/%d_%s_%s",
		subfolder, time.Now().UnixNano(), uuid.NewString()[:8], filepath.Base(suggestedName))

	contentType := mime.TypeByExtension(filepath.Ext(suggestedName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return objectKey, nil
}

func (s *Storage) ReadFile(ctx context.Context, storagePath string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, storagePath, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", storagePath, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", storagePath, err)
	}
	return data, nil
}

// CleanupTempFiles removes staged objects best-effort; failures are only
// logged.
func (s *Storage) CleanupTempFiles(ctx context.Context, paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, p, miniogo.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("failed to remove temp object", zap.String("path", p), zap.Error(err))
		}
	}
}

// PresignedReadURL grants time-limited read access to a stored object
// without exposing credentials.
func (s *Storage) PresignedReadURL(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, storagePath, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", storagePath, err)
	}
	return u.String(), nil
}
