// Package storage persists lifecycle records behind a keyed, versioned
// contract. The engine never performs unconditional writes: every mutation
// carries the version read at evaluation start, and a conflicting write is
// rejected rather than merged.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

var (
	// ErrNotFound means no record exists for the resource ID.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means the stored version no longer matches the
	// expected one. The caller retries the whole evaluation; it never
	// merges.
	ErrVersionConflict = errors.New("record version conflict")
)

// RecordReader queries lifecycle records.
type RecordReader interface {
	Get(ctx context.Context, resourceID string) (types.ResourceRecord, error)

	// ListDueDeletions returns PendingDeletion records whose schedule has
	// come due at or before now.
	ListDueDeletions(ctx context.Context, now time.Time) ([]types.ResourceRecord, error)

	ListRecords(ctx context.Context) ([]types.ResourceRecord, error)
}

// RecordWriter mutates lifecycle records with optimistic concurrency.
type RecordWriter interface {
	// ConditionalPut writes the record iff the stored version equals
	// expectedVersion; expectedVersion 0 means the record must not exist
	// yet. The stored record's version becomes expectedVersion+1. Returns
	// ErrVersionConflict on any disagreement.
	ConditionalPut(ctx context.Context, record types.ResourceRecord, expectedVersion int64) error
}

// RecordStore is the complete store contract consumed by the engine.
type RecordStore interface {
	RecordReader
	RecordWriter
	Close() error
}
