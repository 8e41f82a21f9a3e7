package storage

import (
	"context"
)

// StorageClient mirrors downloaded files to a storage backend
type StorageClient interface {
	// Close closes the storage client
	Close() error

	// StoreFile uploads the local file at localPath to objectPath
	StoreFile(ctx context.Context, objectPath, localPath string) error

	// FileExists checks if an object exists at objectPath
	FileExists(ctx context.Context, objectPath string) (bool, error)

	// List returns the object paths under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Describe returns a human-readable location such as gs://bucket/prefix
	Describe() string
}
