// Package downloadlog keeps the bounded record of files that have already been
// downloaded: an in-memory set capped at MaxSize entries backed by an
// append-only text file capped at LimitLines lines.
//
// The in-memory set evicts its oldest entry independently of the file
// truncation, so an item can be forgotten in memory while it is still listed
// remotely; adding it again is then treated as new. That behaviour is kept on
// purpose for compatibility with existing log files and is covered by tests.
package downloadlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMaxSize    = 5000
	DefaultLimitLines = 100000
	// DefaultTrimBytes is the file size above which the line limit is enforced.
	DefaultTrimBytes = 10 * 1024 * 1024
)

// Log is safe for concurrent use, although the sync loop uses it from a single goroutine.
type Log struct {
	mu         sync.Mutex
	seen       *lru.Cache[string, struct{}]
	maxSize    int
	path       string
	limitLines int
	trimBytes  int64
}

// Options configures Open. Zero values fall back to the defaults.
type Options struct {
	MaxSize    int
	LimitLines int
	TrimBytes  int64
}

// Open loads the log at path (if it exists) into memory. An empty path keeps
// the record in memory only.
func Open(path string, opts Options) (*Log, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.LimitLines <= 0 {
		opts.LimitLines = DefaultLimitLines
	}
	if opts.TrimBytes <= 0 {
		opts.TrimBytes = DefaultTrimBytes
	}

	cache, err := lru.New[string, struct{}](opts.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create download set: %w", err)
	}

	l := &Log{
		seen:       cache,
		maxSize:    opts.MaxSize,
		path:       path,
		limitLines: opts.LimitLines,
		trimBytes:  opts.TrimBytes,
	}
	if path == "" {
		return l, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open download log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if item := strings.TrimSpace(scanner.Text()); item != "" {
			l.remember(item)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read download log %s: %w", path, err)
	}
	return l, nil
}

// remember inserts item without touching the file. Reports whether it was new.
func (l *Log) remember(item string) bool {
	if l.seen.Contains(item) {
		return false
	}
	l.seen.Add(item, struct{}{})
	return true
}

// Add records item. It returns false when item is already known; otherwise the
// item is inserted, evicting the oldest entry once the set is full, and appended
// to the file.
func (l *Log) Add(item string) (bool, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.remember(item) {
		return false, nil
	}
	if l.path == "" {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return true, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return true, fmt.Errorf("failed to open download log: %w", err)
	}
	if _, err := f.WriteString(item + "\n"); err != nil {
		f.Close()
		return true, fmt.Errorf("failed to append to download log: %w", err)
	}
	if err := f.Close(); err != nil {
		return true, fmt.Errorf("failed to close download log: %w", err)
	}
	return true, l.trimIfNeeded()
}

// Contains reports whether item is in the in-memory set.
func (l *Log) Contains(item string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen.Contains(item)
}

// Len returns the number of items held in memory.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen.Len()
}

// MaxSize returns the in-memory capacity.
func (l *Log) MaxSize() int {
	return l.maxSize
}

func (l *Log) String() string {
	return fmt.Sprintf("downloadlog(size=%d, path=%s)", l.Len(), l.path)
}

// trimIfNeeded keeps only the last limitLines lines once the file grows past trimBytes.
func (l *Log) trimIfNeeded() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("failed to stat download log: %w", err)
	}
	if info.Size() <= l.trimBytes {
		return nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read download log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) <= l.limitLines {
		return nil
	}
	kept := strings.Join(lines[len(lines)-l.limitLines:], "\n") + "\n"

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(kept), 0644); err != nil {
		return fmt.Errorf("failed to write trimmed download log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace download log: %w", err)
	}
	return nil
}
