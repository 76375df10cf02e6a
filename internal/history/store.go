// Package history keeps a bounded ring of recent SystemSnapshots in an
// embedded SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"forged/internal/sink"
	"forged/pkg/types"
)

const (
	defaultRetain = 3600
	recordTimeout = 5 * time.Second
)

// Store persists snapshots, keeping only the newest retain rows.
type Store struct {
	db     *sql.DB
	retain int
}

// Open opens (creating if needed) the database at path. ":memory:" keeps the
// ring in process memory only.
func Open(ctx context.Context, path string, retain int) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if retain <= 0 {
		retain = defaultRetain
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite is single-writer; one connection also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			_ = db.Close()
			return nil, err
		}
		_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
		_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, retain: retain}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  captured_at INTEGER NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_captured_at ON snapshots(captured_at);`)
	return err
}

// Record appends snap and drops rows beyond the retention window.
func (s *Store) Record(ctx context.Context, snap types.SystemSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (captured_at, payload) VALUES (?, ?)`,
		snap.CapturedAt.UnixMilli(), string(payload)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id <= (SELECT MAX(id) FROM snapshots) - ?`, s.retain); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to limit of the newest snapshots, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.SystemSnapshot, error) {
	if limit <= 0 || limit > s.retain {
		limit = s.retain
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SystemSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap types.SystemSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

// Subscriber adapts the store to Monitor.Subscribe. Write failures are
// reported to snk and otherwise dropped.
func (s *Store) Subscriber(snk sink.Sink) func(types.SystemSnapshot) {
	snk = sink.OrNop(snk)
	return func(snap types.SystemSnapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.Record(ctx, snap); err != nil {
			snk.Log(sink.LevelWarn, "history", "record snapshot: "+err.Error())
		}
	}
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
