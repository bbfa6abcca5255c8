// Package history records one row per orchestrated sync pass so the log
// viewer can show what was sent and how it ended.
package history

import (
	"context"
	"time"
)

// Record is a finished sync pass.
type Record struct {
	ID        string
	Target    string
	Kind      string // "file" or "directory"; empty when the target never resolved
	Succeeded bool
	Status    int
	Message   string
	ErrorKind string
	CreatedAt time.Time
}

type Repository interface {
	// Insert stores r. An empty ID is replaced with a fresh UUID and a zero
	// CreatedAt with the current UTC time.
	Insert(ctx context.Context, r *Record) error

	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}
