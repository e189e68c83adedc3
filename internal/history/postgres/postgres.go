// Package postgres implements the history store on PostgreSQL, for setups
// where several machines should share one transcription log.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/florentcollect/flototext/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id         BIGSERIAL PRIMARY KEY,
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at
	ON transcriptions (created_at DESC);
`

// Store is a PostgreSQL-backed history.Store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ history.Store = (*Store)(nil)

// Open establishes a connection pool to the database at dsn and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history/postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history/postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history/postgres: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, text string, at time.Time) (history.Record, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transcriptions (text, created_at) VALUES ($1, $2) RETURNING id`,
		text, at,
	).Scan(&id)
	if err != nil {
		return history.Record{}, fmt.Errorf("history/postgres: insert: %w", err)
	}
	return history.Record{ID: id, Text: text, CreatedAt: at}, nil
}

// List implements history.Store.
func (s *Store) List(ctx context.Context, since time.Time, limit int) ([]history.Record, error) {
	query := `
		SELECT id, text, created_at
		FROM transcriptions
		WHERE created_at >= $1
		ORDER BY created_at DESC, id DESC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history/postgres: query: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var r history.Record
		if err := rows.Scan(&r.ID, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history/postgres: scan: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Last implements history.Store.
func (s *Store) Last(ctx context.Context) (*history.Record, error) {
	var r history.Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, text, created_at
		FROM transcriptions
		ORDER BY created_at DESC, id DESC
		LIMIT 1`).Scan(&r.ID, &r.Text, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("history/postgres: scan last: %w", err)
	}
	return &r, nil
}

// PurgeOlderThan implements history.Store.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transcriptions WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("history/postgres: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
