// Package store keeps a journal of sync runs in SQLite. The start time of
// the last successful run of a pass is the watermark for the next one.
package store

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
)

const fileName = "journal.db"

// Run states.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Stats counts what a pass did.
type Stats struct {
	Created  int
	Updated  int
	Archived int
	Skipped  int
	Failed   int
}

// Run is one journal row.
type Run struct {
	ID         string
	Pass       string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      Stats
	Error      string
}

// Store provides access to the run journal.
type Store struct {
	db *sql.DB
}

// New opens the journal in stateDir and runs migrations.
func New(stateDir string) (*Store, error) {
	return Open(filepath.Join(stateDir, fileName))
}

// Open opens the journal at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pass TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_pass_started ON runs(pass, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of a pass and returns the run id.
func (s *Store) BeginRun(ctx context.Context, pass string, started time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pass, status, started_at) VALUES (?, ?, ?, ?)`,
		id, pass, StatusRunning, started.UTC())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run. A nil runErr marks it successful.
func (s *Store) FinishRun(ctx context.Context, id string, finished time.Time, stats Stats, runErr error) error {
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, created = ?, updated = ?, archived = ?, skipped = ?, failed = ?, error = ?
		 WHERE id = ?`,
		status, finished.UTC(), stats.Created, stats.Updated, stats.Archived, stats.Skipped, stats.Failed, msg, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// LastSuccessfulRun returns the start time of the latest successful run of
// pass. The boolean is false when the pass never succeeded.
func (s *Store) LastSuccessfulRun(ctx context.Context, pass string) (time.Time, bool, error) {
	var started time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM runs WHERE pass = ? AND status = ? ORDER BY started_at DESC LIMIT 1`,
		pass, StatusOK).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last run: %w", err)
	}
	return started, true, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pass, status, started_at, finished_at, created, updated, archived, skipped, failed, COALESCE(error, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Pass, &r.Status, &r.StartedAt, &finished,
			&r.Stats.Created, &r.Stats.Updated, &r.Stats.Archived, &r.Stats.Skipped, &r.Stats.Failed, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
