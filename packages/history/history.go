// Package history persists completed runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	report_path TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	aborted     INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL
)`

// ErrNoRuns is returned by Last when the store is empty
var ErrNoRuns = errors.New("history: no runs recorded")

// Run is one completed report
type Run struct {
	ID         string
	ReportPath string
	Source     string
	Total      int
	Passed     int
	Failed     int
	Skipped    int
	Aborted    bool
	Duration   time.Duration
	CreatedAt  time.Time
}

// Succeeded reports whether the run had no failures
func (r Run) Succeeded() bool {
	return r.Failed == 0 && !r.Aborted
}

// Store is a run history database
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens (and creates if needed) the store at connectionString.
// Supported formats: sqlite://path/to/history.db, sqlite:history.db, or a
// bare file path.
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// A single connection keeps :memory: databases alive across calls
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a run
func (s *Store) Record(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, report_path, source, total, passed, failed, skipped, aborted, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReportPath, run.Source, run.Total, run.Passed, run.Failed, run.Skipped,
		run.Aborted, run.Duration.Milliseconds(), run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_path, source, total, passed, failed, skipped, aborted, duration_ms, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			r          Run
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &r.ReportPath, &r.Source, &r.Total, &r.Passed, &r.Failed,
			&r.Skipped, &r.Aborted, &durationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Last returns the most recent run or ErrNoRuns
func (s *Store) Last(ctx context.Context) (Run, error) {
	runs, err := s.Recent(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case connStr == "":
		return "", fmt.Errorf("empty history database path")
	case strings.HasPrefix(connStr, "sqlite://"):
		return strings.TrimPrefix(connStr, "sqlite://"), nil
	case strings.HasPrefix(connStr, "sqlite:"):
		return strings.TrimPrefix(connStr, "sqlite:"), nil
	case strings.Contains(connStr, "://"):
		return "", fmt.Errorf("unsupported history database: %s", connStr)
	default:
		return connStr, nil
	}
}
