// Package mock provides an in-memory implementation of the [history.Store]
// interface for use in unit tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/florentcollect/flototext/internal/history"
)

// Store is an in-memory [history.Store]. The controller appends in the
// background, so the Appended channel lets tests wait for an append instead
// of polling.
type Store struct {
	mu sync.Mutex

	// AppendErr, when non-nil, makes Append fail. LastErr does the same
	// for Last.
	AppendErr error
	LastErr   error

	// Appended receives every stored record. Buffered; sends never block.
	Appended chan history.Record

	records    []history.Record
	nextID     int64
	CloseCalls int
}

var _ history.Store = (*Store)(nil)

// New creates an empty mock store.
func New() *Store {
	return &Store{Appended: make(chan history.Record, 16), nextID: 1}
}

func (s *Store) Append(_ context.Context, text string, at time.Time) (history.Record, error) {
	s.mu.Lock()
	if s.AppendErr != nil {
		err := s.AppendErr
		s.mu.Unlock()
		return history.Record{}, err
	}
	rec := history.Record{ID: s.nextID, Text: text, CreatedAt: at}
	s.nextID++
	s.records = append(s.records, rec)
	s.mu.Unlock()

	select {
	case s.Appended <- rec:
	default:
	}
	return rec, nil
}

func (s *Store) List(_ context.Context, since time.Time, limit int) ([]history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]history.Record, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].CreatedAt.Before(since) {
			continue
		}
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Last(_ context.Context) (*history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LastErr != nil {
		return nil, s.LastErr
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, nil
}

func (s *Store) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []history.Record
	var deleted int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
