package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"satsync/internal/logger"
)

// GCSClient handles Google Cloud Storage operations
type GCSClient struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSClient creates a new GCS client
func NewGCSClient(ctx context.Context, bucketName, prefix string) (*GCSClient, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSClient{
		client: client,
		bucket: bucketName,
		prefix: prefix,
	}, nil
}

// Close closes the GCS client
func (g *GCSClient) Close() error {
	return g.client.Close()
}

func (g *GCSClient) Describe() string {
	return "gs://" + JoinObjectPath(g.bucket, g.prefix)
}

// StoreFile streams localPath to the bucket
func (g *GCSClient) StoreFile(ctx context.Context, objectPath, localPath string) error {
	key := JoinObjectPath(g.prefix, objectPath)
	logger.Debug("Storing file to GCS", map[string]interface{}{
		"bucket": g.bucket,
		"object": key,
	})

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = GetContentType(localPath)
	writer.Metadata = map[string]string{
		"mirrored-at": time.Now().UTC().Format(time.RFC3339),
		"filename":    filepath.Base(localPath),
	}

	if _, err := io.Copy(writer, f); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write file to GCS: %w", err)
	}

	// Close finalizes the upload
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS file upload: %w", err)
	}
	return nil
}

// FileExists checks the object attributes
func (g *GCSClient) FileExists(ctx context.Context, objectPath string) (bool, error) {
	key := JoinObjectPath(g.prefix, objectPath)
	_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get attributes of %s: %w", key, err)
	}
	return true, nil
}

// List returns object paths under prefix, relative to the client prefix
func (g *GCSClient) List(ctx context.Context, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: JoinObjectPath(g.prefix, prefix)}
	it := g.client.Bucket(g.bucket).Objects(ctx, query)

	var paths []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		paths = append(paths, TrimObjectPrefix(g.prefix, attrs.Name))
	}
	sort.Strings(paths)
	return paths, nil
}
