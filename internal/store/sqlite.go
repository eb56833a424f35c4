package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/schedrt/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath. Use
// ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL keeps readers (the status API) off the writers' backs.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// schema contains the DDL for the result history. Each statement uses
// IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS results (
		run_id     TEXT NOT NULL,
		task_id    INTEGER NOT NULL,
		ok         INTEGER NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		time_ns    INTEGER NOT NULL DEFAULT 0,
		engine     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, created_at)`,
}

// Migrate creates the results table and its indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveResult appends one result under runID.
func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, res model.ExecutionResult) error {
	s.logger.Debug("sql", "op", "insert", "table", "results", "task_id", uint64(res.ID))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (run_id, task_id, ok, message, time_ns, engine, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, uint64(res.ID), boolToInt(res.OK), res.Message,
		res.Runtime.Nanoseconds(), res.Engine,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListResults returns runID's results in insertion order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]ResultRow, error) {
	s.logger.Debug("sql", "op", "select", "table", "results", "run_id", runID)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, task_id, ok, message, time_ns, engine, created_at
		 FROM results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var row ResultRow
		var taskID uint64
		var ok int
		var ns int64
		var createdAt string
		if err := rows.Scan(&row.RunID, &taskID, &ok, &row.Message, &ns, &row.Engine, &createdAt); err != nil {
			return nil, err
		}
		row.TaskID = model.TaskID(taskID)
		row.OK = ok != 0
		row.Runtime = time.Duration(ns)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			row.CreatedAt = ts
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListRuns returns the distinct run ids, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM results GROUP BY run_id ORDER BY MAX(rowid) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
