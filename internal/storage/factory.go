package storage

import (
	"context"
	"fmt"

	"satsync/internal/config"
)

// Mode selects the mirror backend
type Mode string

const (
	ModeNone  Mode = "none"
	ModeLocal Mode = "local"
	ModeGCS   Mode = "gcs"
	ModeS3    Mode = "s3"
	ModeMinIO Mode = "minio"
)

// NewStorageClient creates a storage client for the configured mirror mode.
// It returns a nil client when mirroring is disabled.
func NewStorageClient(ctx context.Context, cfg *config.MirrorConfig) (StorageClient, error) {
	switch Mode(cfg.Mode) {
	case "", ModeNone:
		return nil, nil

	case ModeLocal:
		baseDir := cfg.LocalDir
		if baseDir == "" {
			baseDir = "mirror"
		}
		localClient, err := NewLocalStorageClient(baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage client: %w", err)
		}
		return localClient, nil

	case ModeGCS:
		gcsClient, err := NewGCSClient(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS client: %w", err)
		}
		return gcsClient, nil

	case ModeS3:
		s3Client, err := NewS3Client(ctx, S3Options{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		return s3Client, nil

	case ModeMinIO:
		minioClient, err := NewMinioClient(MinioOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
		}
		return minioClient, nil

	default:
		return nil, fmt.Errorf("unsupported mirror mode: %s", cfg.Mode)
	}
}
