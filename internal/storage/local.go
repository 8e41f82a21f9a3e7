package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorageClient mirrors files into a directory tree
type LocalStorageClient struct {
	baseDir string
}

// NewLocalStorageClient creates a new local storage client
func NewLocalStorageClient(baseDir string) (*LocalStorageClient, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}
	return &LocalStorageClient{baseDir: baseDir}, nil
}

// Close is a no-op for local storage
func (l *LocalStorageClient) Close() error {
	return nil
}

func (l *LocalStorageClient) Describe() string {
	return "file://" + l.baseDir
}

func (l *LocalStorageClient) path(objectPath string) string {
	return filepath.Join(l.baseDir, filepath.FromSlash(CleanObjectPath(objectPath)))
}

// StoreFile copies localPath into the tree, replacing any existing copy atomically
func (l *LocalStorageClient) StoreFile(ctx context.Context, objectPath, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dst := l.path(objectPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	return AtomicWrite(dst, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

// FileExists checks if objectPath exists under the base directory
func (l *LocalStorageClient) FileExists(ctx context.Context, objectPath string) (bool, error) {
	_, err := os.Stat(l.path(objectPath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
}

// List walks the tree and returns slash-separated paths under prefix
func (l *LocalStorageClient) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.baseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || IsPartial(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.baseDir, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk mirror directory: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
