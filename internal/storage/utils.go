package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// PartSuffix marks a download in progress.
const PartSuffix = ".part"

// IsPartial reports whether name is an in-progress download.
func IsPartial(name string) bool {
	return strings.HasSuffix(name, PartSuffix)
}

// AtomicWrite writes dst through a sibling .part file that is renamed into
// place only after write succeeds. The .part file is removed on any failure.
func AtomicWrite(dst string, write func(w io.Writer) error) (err error) {
	tmp := dst + PartSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// CleanObjectPath normalizes p to a slash-separated relative object path.
func CleanObjectPath(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	return strings.TrimPrefix(p, "/")
}

// JoinObjectPath joins non-empty parts with a single slash.
func JoinObjectPath(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.Trim(filepath.ToSlash(p), "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// TrimObjectPrefix strips prefix and the following slash from key.
func TrimObjectPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

var contentTypes = map[string]string{
	".nc":   "application/x-netcdf",
	".nc4":  "application/x-netcdf",
	".hdf":  "application/x-hdf",
	".h5":   "application/x-hdf5",
	".zip":  "application/zip",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".csv":  "text/csv",
	".json": "application/json",
	".txt":  "text/plain",
}

// GetContentType determines the MIME type from the extension, falling back to
// sniffing the file content.
func GetContentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	if mt, err := mimetype.DetectFile(filename); err == nil {
		return mt.String()
	}
	return "application/octet-stream"
}
