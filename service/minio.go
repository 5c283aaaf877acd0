package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
)

// Artifact is an exported file kept in object storage.
type Artifact struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArtifactStore keeps exported documents.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error)
}

// MinioArtifactStore writes exports to a MinIO bucket and hands out
// presigned download links.
type MinioArtifactStore struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioArtifactStore(cfg *config.MinioConfig) (*MinioArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads data under key and returns a presigned link to it.
func (s *MinioArtifactStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Artifact, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url, expires, err := s.PresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Artifact{Key: key, Size: info.Size, URL: url, ExpiresAt: expires}, nil
}

// PresignedURL generates a download link valid for the configured number of days.
func (s *MinioArtifactStore) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	expiry := s.expiry()
	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), time.Now().Add(expiry), nil
}

func (s *MinioArtifactStore) expiry() time.Duration {
	days := s.config.ExpireDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// ObjectKey is where a contract's export is stored.
func ObjectKey(contractID, filename string) string {
	return fmt.Sprintf("contracts/%s/%s", contractID, filename)
}
