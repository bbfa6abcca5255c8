// Package metadata is the key/value table the agent keeps its small pieces of
// state in: the saved username, the access token and the already-synced
// folder and file names.
package metadata

import (
	"context"
	"time"
)

// Entry describes a stored key without its value.
type Entry struct {
	Key  string
	Size int64
	// UpdatedAt is zero for rows written before the column existed.
	UpdatedAt time.Time
}

// Repository is a byte-valued key/value store.
type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the given keys in one statement. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Entries lists what is stored, ordered by key.
	Entries(ctx context.Context) ([]Entry, error)
}
