// Package sqlite implements the history store on an embedded SQLite
// database, the default backend: no server to run, one file next to the
// config.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/florentcollect/flototext/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at
	ON transcriptions(created_at);
`

// Store is a SQLite-backed history.Store.
type Store struct {
	db *sql.DB
}

var _ history.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history/sqlite: create dir for %q: %w", path, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history/sqlite: open %q: %w", path, err)
	}
	// The sqlite driver does not support concurrent writers on one
	// connection pool entry; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history/sqlite: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history/sqlite: ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, text string, at time.Time) (history.Record, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions (text, created_at) VALUES (?, ?)`,
		text, at.UnixNano(),
	)
	if err != nil {
		return history.Record{}, fmt.Errorf("history/sqlite: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return history.Record{}, fmt.Errorf("history/sqlite: last insert id: %w", err)
	}
	return history.Record{ID: id, Text: text, CreatedAt: at}, nil
}

// List implements history.Store.
func (s *Store) List(ctx context.Context, since time.Time, limit int) ([]history.Record, error) {
	query := `
		SELECT id, text, created_at
		FROM transcriptions
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC`
	args := []any{since.UnixNano()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history/sqlite: query: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var r history.Record
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("history/sqlite: scan: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Last implements history.Store.
func (s *Store) Last(ctx context.Context) (*history.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, created_at
		FROM transcriptions
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)

	var r history.Record
	var createdAt int64
	if err := row.Scan(&r.ID, &r.Text, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("history/sqlite: scan last: %w", err)
	}
	r.CreatedAt = time.Unix(0, createdAt)
	return &r, nil
}

// PurgeOlderThan implements history.Store.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcriptions WHERE created_at < ?`, cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("history/sqlite: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history/sqlite: rows affected: %w", err)
	}
	return n, nil
}
