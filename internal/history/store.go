// Package history keeps scenario results in SQLite so soak runs can be
// inspected afterwards.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xychain/xy-e2e/internal/scenario"
)

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path. ":memory:" gives a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	// One connection keeps ":memory:" a single database and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: wal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS results (
			run_id      TEXT NOT NULL,
			scenario    TEXT NOT NULL,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, scenario)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_started ON results(started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Record stores every result of run.
func (s *Store) Record(ctx context.Context, run *scenario.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, res := range run.Results {
		started := res.Started
		if started.IsZero() {
			started = run.Started
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO results(run_id, scenario, status, error, started_at, duration_ms)
			 VALUES(?, ?, ?, ?, ?, ?)`,
			run.ID, res.Scenario, string(res.Status), res.Error,
			started.UnixNano(), res.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("history: insert %s/%s: %w", run.ID, res.Scenario, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]scenario.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, scenario, status, error, started_at, duration_ms
		 FROM results ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scenario.Result
	for rows.Next() {
		var (
			res      scenario.Result
			status   string
			started  int64
			duration int64
		)
		if err := rows.Scan(&res.RunID, &res.Scenario, &status, &res.Error, &started, &duration); err != nil {
			return nil, err
		}
		res.Status = scenario.Status(status)
		res.Started = time.Unix(0, started).UTC()
		res.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}

// Stats counts stored results per scenario and status.
func (s *Store) Stats(ctx context.Context) (map[string]map[scenario.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scenario, status, COUNT(*) FROM results GROUP BY scenario, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[scenario.Status]int)
	for rows.Next() {
		var name, status string
		var n int
		if err := rows.Scan(&name, &status, &n); err != nil {
			return nil, err
		}
		if out[name] == nil {
			out[name] = make(map[scenario.Status]int)
		}
		out[name][scenario.Status(status)] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
