package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yshirai/genimage/internal/keys"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    style TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    prompt TEXT NOT NULL,
    resolution TEXT NOT NULL DEFAULT '',
    aspect_ratio TEXT NOT NULL DEFAULT '',
    output_path TEXT NOT NULL,
    bytes INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
`

const DefaultListLimit = 20

var (
	ErrNotFound    = errors.New("no matching generation")
	ErrAmbiguousID = errors.New("ID prefix matches multiple generations")
)

// Entry is one recorded generation.
type Entry struct {
	ID          string
	CreatedAt   time.Time
	Provider    string
	Model       string
	Style       string
	Subject     string
	Prompt      string
	Resolution  string
	AspectRatio string
	OutputPath  string
	Bytes       int64
	Duration    time.Duration
}

type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath places the history database next to keys.json in the
// config directory.
func DefaultPath() (string, error) {
	dir, err := keys.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	// Batch runs write from several goroutines.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file backing this store.
func (s *Store) Path() string {
	return s.path
}

// Record inserts an entry, assigning an ID and timestamp when the
// caller left them empty.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, created_at, provider, model, style, subject, prompt, resolution, aspect_ratio, output_path, bytes, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt, e.Provider, e.Model, e.Style, e.Subject, e.Prompt,
		e.Resolution, e.AspectRatio, e.OutputPath, e.Bytes, e.Duration.Milliseconds())
	return err
}

const entryColumns = `id, created_at, provider, model, style, subject, prompt, resolution, aspect_ratio, output_path, bytes, duration_ms`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	e := &Entry{}
	var durationMS int64
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.Provider, &e.Model, &e.Style, &e.Subject,
		&e.Prompt, &e.Resolution, &e.AspectRatio, &e.OutputPath, &e.Bytes, &durationMS); err != nil {
		return nil, err
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return e, nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM generations ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get looks an entry up by ID prefix. The prefix must identify
// exactly one entry.
func (s *Store) Get(ctx context.Context, idPrefix string) (*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM generations WHERE id LIKE ? LIMIT 2`, idPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(entries) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idPrefix)
	case 1:
		return entries[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, idPrefix)
	}
}

// Clear deletes all entries and reports how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarizes the recorded generations.
type Stats struct {
	Count      int64
	TotalBytes int64
	First      time.Time
	Last       time.Time
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(bytes), 0) FROM generations`).Scan(&stats.Count, &stats.TotalBytes); err != nil {
		return nil, err
	}
	if stats.Count == 0 {
		return stats, nil
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM generations ORDER BY created_at ASC, id LIMIT 1`).Scan(&stats.First); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM generations ORDER BY created_at DESC, id LIMIT 1`).Scan(&stats.Last); err != nil {
		return nil, err
	}
	return stats, nil
}
