// Package runlog keeps a per-file ledger of batch processing outcomes in an
// SQLite database, so interrupted or repeated runs can be audited and
// reconciled against their inputs.
//
// Usage:
//
//	log, err := runlog.Open("runs.db")
//	defer log.Close()
//	err = log.Append(ctx, docproc.RunEntry{File: "a.pdf", Status: "processed"})
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skovdata/corpuskit/docproc"
)

// Schema is the runs table DDL, applied on every Open.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	file        TEXT NOT NULL,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL,
	records     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Log is an append-only run ledger. Safe for concurrent use.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path and applies
// the schema. Parent directories are created. Use ":memory:" for tests.
func Open(path string) (*Log, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("runlog: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("runlog: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: apply schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append records one file outcome. It retries on SQLITE_BUSY since batch
// workers journal concurrently.
func (l *Log) Append(ctx context.Context, e docproc.RunEntry) error {
	const q = `INSERT INTO runs (file, source, status, records, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`
	const maxRetries = 3
	var err error
	for i := range maxRetries {
		_, err = l.db.ExecContext(ctx, q,
			e.File, e.Source, e.Status, e.Records, e.Error, e.Duration.Milliseconds())
		if err == nil || !isBusy(err) {
			return err
		}
		if serr := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); serr != nil {
			return fmt.Errorf("runlog: cancelled during retry: %w", serr)
		}
	}
	return fmt.Errorf("runlog: append: %w", err)
}

// Summary aggregates outcome counts for one source.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Records   int
}

// Summarize reports aggregate counts for a source label.
func (l *Log) Summarize(ctx context.Context, source string) (Summary, error) {
	const q = `SELECT status, COUNT(*), COALESCE(SUM(records), 0)
		FROM runs WHERE source = ? GROUP BY status`
	rows, err := l.db.QueryContext(ctx, q, source)
	if err != nil {
		return Summary{}, fmt.Errorf("runlog: summarize: %w", err)
	}
	defer rows.Close()

	var s Summary
	for rows.Next() {
		var status string
		var count, records int
		if err := rows.Scan(&status, &count, &records); err != nil {
			return Summary{}, fmt.Errorf("runlog: scan: %w", err)
		}
		switch status {
		case "processed":
			s.Processed = count
			s.Records += records
		case "skipped":
			s.Skipped = count
		case "failed":
			s.Failed = count
		}
	}
	return s, rows.Err()
}

// Failures returns the file paths that failed for a source, oldest first.
func (l *Log) Failures(ctx context.Context, source string) ([]string, error) {
	const q = `SELECT file FROM runs WHERE source = ? AND status = 'failed' ORDER BY id`
	rows, err := l.db.QueryContext(ctx, q, source)
	if err != nil {
		return nil, fmt.Errorf("runlog: failures: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("runlog: scan: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
