package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dictverify/internal/verify"
)

// Entry is one finished verification.
type Entry struct {
	ID           int64
	DictionaryID uuid.UUID
	Status       string
	Verified     int
	Total        int
	Volume       int
	Item         string
	Message      string
	PersistError string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store is the history database. It implements verify.RunLog.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendRun stores a finished verification.
func (s *Store) AppendRun(ctx context.Context, result verify.Result) error {
	var persistErr string
	if result.PersistErr != nil {
		persistErr = result.PersistErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verify_runs (
            dictionary_id, status, verified, total, volume, item, message,
            persist_error, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.DictionaryID.String(),
		result.Status.String(),
		result.Verified,
		result.Total,
		nullableInt(result.Ordinal),
		nullableString(result.Item),
		nullableString(result.Message),
		nullableString(persistErr),
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert verify run: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A nil id selects every dictionary.
func (s *Store) Recent(ctx context.Context, id uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, dictionary_id, status, verified, total, volume, item, message,
            persist_error, started_at, finished_at
        FROM verify_runs`
	args := []any{}
	if id != uuid.Nil {
		query += " WHERE dictionary_id = ?"
		args = append(args, id.String())
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verify runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry                     Entry
			rawID, started, finished  string
			volume                    sql.NullInt64
			item, message, persistErr sql.NullString
		)
		if err := rows.Scan(&entry.ID, &rawID, &entry.Status, &entry.Verified, &entry.Total,
			&volume, &item, &message, &persistErr, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan verify run: %w", err)
		}
		if entry.DictionaryID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse dictionary id %q: %w", rawID, err)
		}
		entry.Volume = int(volume.Int64)
		entry.Item = item.String
		entry.Message = message.String
		entry.PersistError = persistErr.String
		entry.StartedAt = parseTime(started)
		entry.FinishedAt = parseTime(finished)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verify runs: %w", err)
	}
	return entries, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
