package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"

	"vidconv/internal/domain"
)

// MinioStore talks to an S3-compatible object storage service. It carries
// no per-request state: signing works regardless of which process uploaded
// the object, so the status path can run in a different instance than the
// worker.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func (s *MinioStore) Upload(ctx context.Context, localPath, key, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: upload %s: %v", domain.ErrStorage, key, err)
	}
	return nil
}

func (s *MinioStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	// Presigning is pure computation and succeeds for absent keys, so
	// existence is checked explicitly to distinguish an expired artifact
	// from a transient storage fault.
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("%w: stat %s: %v", domain.ErrStorage, key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", domain.ErrStorage, key, err)
	}
	return u.String(), nil
}

var _ Store = (*MinioStore)(nil)
