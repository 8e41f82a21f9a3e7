// Package checkpoint persists sync cursors in SQLite so a restarted loop
// resumes where it stopped instead of at the configured start.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	source     TEXT PRIMARY KEY,
	cursor     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	last_found TEXT,
	updated_at TEXT NOT NULL
)`

// Checkpoint is the persisted position of one source's sync loop.
type Checkpoint struct {
	Source    string    `json:"source"`
	Cursor    time.Time `json:"cursor"`
	Mode      string    `json:"mode"`
	LastFound time.Time `json:"last_found,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes checkpoints.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and creates if needed) the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the checkpoint for source. ok is false when none is stored.
func (s *Store) Load(ctx context.Context, source string) (cp Checkpoint, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source, cursor, mode, last_found, updated_at FROM checkpoints WHERE source = ?`, source)
	cp, err = scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to load checkpoint for %s: %w", source, err)
	}
	return cp, true, nil
}

// Save inserts or replaces the checkpoint for cp.Source.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	if cp.Source == "" {
		return errors.New("checkpoint source is required")
	}
	var lastFound sql.NullString
	if !cp.LastFound.IsZero() {
		lastFound = sql.NullString{String: formatTime(cp.LastFound), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (source, cursor, mode, last_found, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			cursor = excluded.cursor,
			mode = excluded.mode,
			last_found = excluded.last_found,
			updated_at = excluded.updated_at`,
		cp.Source, formatTime(cp.Cursor), cp.Mode, lastFound, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", cp.Source, err)
	}
	return nil
}

// List returns all checkpoints ordered by source.
func (s *Store) List(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, cursor, mode, last_found, updated_at FROM checkpoints ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Delete removes the checkpoint for source, if any.
func (s *Store) Delete(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", source, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Checkpoint, error) {
	var (
		cp              Checkpoint
		cursor, updated string
		lastFound       sql.NullString
	)
	if err := r.Scan(&cp.Source, &cursor, &cp.Mode, &lastFound, &updated); err != nil {
		return Checkpoint{}, err
	}

	var err error
	if cp.Cursor, err = parseTime(cursor); err != nil {
		return Checkpoint{}, err
	}
	if cp.UpdatedAt, err = parseTime(updated); err != nil {
		return Checkpoint{}, err
	}
	if lastFound.Valid && strings.TrimSpace(lastFound.String) != "" {
		if cp.LastFound, err = parseTime(lastFound.String); err != nil {
			return Checkpoint{}, err
		}
	}
	return cp, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
