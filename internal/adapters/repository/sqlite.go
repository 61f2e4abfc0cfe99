package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS log_entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	timestamp   INTEGER NOT NULL,
	message     TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	received_at INTEGER NOT NULL
);`

// SQLiteStore keeps entries in a single SQLite table ordered by an
// autoincrement sequence.
type SQLiteStore struct {
	settings
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// a throwaway store.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrStore)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrStore, err)
	}
	// One connection serializes appends and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %w", ErrStore, err)
	}
	s := &SQLiteStore{settings: newSettings(opts), db: db}
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries`).Scan(&total); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: count: %w", ErrStore, err)
	}
	s.count.Store(total)
	return s, nil
}

// Append inserts the entry and trims older rows in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, sub model.Submission) (model.LogEntry, error) {
	start := time.Now()
	e, err := s.build(sub)
	if err != nil {
		return model.LogEntry{}, err
	}

	total, err := s.insert(ctx, e)
	if err != nil {
		metrics.RecordStoreError(DriverSQLite, "append")
		return model.LogEntry{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	s.appended(ctx, e, total, start)
	return e, nil
}

func (s *SQLiteStore) insert(ctx context.Context, e model.LogEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_entries (id, timestamp, message, type, received_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.Message, string(e.Type), e.ReceivedAt.UnixNano(),
	); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM log_entries WHERE seq NOT IN (SELECT seq FROM log_entries ORDER BY seq DESC LIMIT ?)`,
		s.retention,
	); err != nil {
		return 0, fmt.Errorf("trim: %w", err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// List returns entries oldest first, or an empty slice on any query failure.
func (s *SQLiteStore) List(ctx context.Context) []model.LogEntry {
	entries, err := s.list(ctx)
	if err != nil {
		metrics.RecordStoreError(DriverSQLite, "list")
		s.logger.Warn(ctx, "log table unreadable", logger.Error(err))
		return []model.LogEntry{}
	}
	return entries
}

func (s *SQLiteStore) list(ctx context.Context) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, message, type, received_at FROM log_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.LogEntry{}
	for rows.Next() {
		var (
			e          model.LogEntry
			typ        string
			receivedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Message, &typ, &receivedAt); err != nil {
			return nil, err
		}
		e.Type = model.EntryType(typ)
		e.ReceivedAt = time.Unix(0, receivedAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
