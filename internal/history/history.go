// Package history defines the persistent transcription log.
//
// Every successfully resolved dictation is appended so the user can recover
// text that a focused application swallowed. The log is short-lived by
// design: entries older than the retention window are purged at startup.
package history

import (
	"context"
	"time"
)

// RetentionWindow is how long transcriptions are kept. The log is a recovery
// buffer, not an archive.
const RetentionWindow = 7 * 24 * time.Hour

// Record is one stored transcription.
type Record struct {
	ID        int64
	Text      string
	CreatedAt time.Time
}

// Store is the abstraction over a history backend.
//
// Implementations must be safe for concurrent use: the controller appends
// from background goroutines while the tray reads the latest entry.
type Store interface {
	// Append stores one transcription and returns the stored record with its
	// assigned ID.
	Append(ctx context.Context, text string, at time.Time) (Record, error)

	// List returns up to limit records created at or after since, most
	// recent first. A limit <= 0 returns all matching records. Readers pass
	// now minus [RetentionWindow] as since, so rows that outlived the window
	// but have not been purged yet stay invisible.
	List(ctx context.Context, since time.Time, limit int) ([]Record, error)

	// Last returns the most recent record, or nil when the log is empty.
	Last(ctx context.Context) (*Record, error)

	// PurgeOlderThan deletes records created before cutoff and returns the
	// number deleted.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the backend connection.
	Close() error
}
