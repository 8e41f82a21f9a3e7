package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures NewMinioClient
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	Prefix    string
}

// MinioClient mirrors files to a MinIO (or other S3-compatible) server
type MinioClient struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioClient creates a client with static credentials. No request is made.
func NewMinioClient(opts MinioOptions) (*MinioClient, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioClient{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (m *MinioClient) Close() error {
	return nil
}

func (m *MinioClient) Describe() string {
	return fmt.Sprintf("minio://%s/%s", m.client.EndpointURL().Host, JoinObjectPath(m.bucket, m.prefix))
}

// StoreFile uploads localPath with FPutObject
func (m *MinioClient) StoreFile(ctx context.Context, objectPath, localPath string) error {
	key := JoinObjectPath(m.prefix, objectPath)
	_, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: GetContentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s/%s: %w", localPath, m.bucket, key, err)
	}
	return nil
}

// FileExists stats the object
func (m *MinioClient) FileExists(ctx context.Context, objectPath string) (bool, error) {
	key := JoinObjectPath(m.prefix, objectPath)
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s/%s: %w", m.bucket, key, err)
}

// List returns object paths under prefix
func (m *MinioClient) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    JoinObjectPath(m.prefix, prefix),
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", m.bucket, obj.Err)
		}
		paths = append(paths, TrimObjectPrefix(m.prefix, obj.Key))
	}
	sort.Strings(paths)
	return paths, nil
}
