// Package missinglog records remote periods that could not be found.
package missinglog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	recordedLayout = "2006-01-02 15:04:05"
	periodLayout   = "2006-01-02 15:04"
	separator      = " | "
)

// DefaultReason is used when Record is called without a reason.
const DefaultReason = "Directory not found"

// Entry is one parsed line of a missing-data log.
type Entry struct {
	RecordedAt time.Time `json:"recorded_at"`
	Period     time.Time `json:"period"`
	RemotePath string    `json:"remote_path"`
	Reason     string    `json:"reason"`
}

// Log appends entries to a file. A Log with an empty path discards entries.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New returns a log writing to path.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// WithClock replaces the time source used for the recorded-at column.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Path returns the file the log writes to.
func (l *Log) Path() string {
	return l.path
}

// Record appends one entry for period. Reasons are flattened to one line.
func (l *Log) Record(period time.Time, remotePath, reason string) error {
	if l == nil || l.path == "" {
		return nil
	}
	if reason == "" {
		reason = DefaultReason
	}
	reason = strings.Join(strings.Fields(reason), " ")

	line := strings.Join([]string{
		l.now().UTC().Format(recordedLayout),
		period.UTC().Format(periodLayout),
		remotePath,
		reason,
	}, separator) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create missing-data log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open missing-data log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to write missing-data log: %w", err)
	}
	return f.Close()
}

// ReadEntries parses the log at path. A missing file yields no entries.
// Lines that do not have the four columns are skipped.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open missing-data log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseLine(scanner.Text())
		if ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read missing-data log: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (Entry, bool) {
	parts := strings.SplitN(line, separator, 4)
	if len(parts) != 4 {
		return Entry{}, false
	}
	recorded, err := time.Parse(recordedLayout, parts[0])
	if err != nil {
		return Entry{}, false
	}
	period, err := time.Parse(periodLayout, parts[1])
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		RecordedAt: recorded,
		Period:     period,
		RemotePath: parts[2],
		Reason:     parts[3],
	}, true
}
