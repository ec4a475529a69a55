package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// Bucket names in bbolt.
var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
)

// BoltStore is the embedded record store: bbolt on disk plus an in-memory
// btree index over lifecycle state and schedule time for fast due-deletion
// scans.
type BoltStore struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *btree.BTreeG[*indexEntry]
}

// indexEntry tracks one record's scheduling-relevant fields in the index.
type indexEntry struct {
	ResourceID  string
	State       types.LifecycleState
	ScheduledAt time.Time
}

// NewBoltStore opens (or creates) the store under dir.
func NewBoltStore(dir string) (*BoltStore, error) {
	dbPath := filepath.Join(dir, "costopt.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRecords, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &BoltStore{
		db: db,
		index: btree.NewG[*indexEntry](32, func(a, b *indexEntry) bool {
			return a.ResourceID < b.ResourceID
		}),
	}

	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the record for a resource ID, or ErrNotFound.
func (s *BoltStore) Get(ctx context.Context, resourceID string) (types.ResourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.ResourceRecord{}, err
	}

	var record types.ResourceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(resourceID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return types.ResourceRecord{}, err
	}
	return record, nil
}

// ConditionalPut writes the record iff the stored version equals
// expectedVersion. The write and the version check happen in one bbolt
// transaction, so racing writers serialize and exactly one wins.
func (s *BoltStore) ConditionalPut(ctx context.Context, record types.ResourceRecord, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record.Version = expectedVersion + 1

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		existing := bucket.Get([]byte(record.ID))

		if expectedVersion == 0 {
			if existing != nil {
				return ErrVersionConflict
			}
		} else {
			if existing == nil {
				return ErrVersionConflict
			}
			var stored types.ResourceRecord
			if err := json.Unmarshal(existing, &stored); err != nil {
				return fmt.Errorf("failed to decode stored record %s: %w", record.ID, err)
			}
			if stored.Version != expectedVersion {
				return ErrVersionConflict
			}
		}

		return bucket.Put([]byte(record.ID), data)
	})
	if err != nil {
		return err
	}

	s.index.ReplaceOrInsert(&indexEntry{
		ResourceID:  record.ID,
		State:       record.State,
		ScheduledAt: derefTime(record.ScheduledDeletionAt),
	})
	return nil
}

// ListDueDeletions returns PendingDeletion records due at or before now.
func (s *BoltStore) ListDueDeletions(ctx context.Context, now time.Time) ([]types.ResourceRecord, error) {
	s.mu.RLock()
	var due []string
	s.index.Ascend(func(e *indexEntry) bool {
		if e.State == types.StatePendingDeletion && !e.ScheduledAt.After(now) {
			due = append(due, e.ResourceID)
		}
		return true
	})
	s.mu.RUnlock()

	records := make([]types.ResourceRecord, 0, len(due))
	for _, id := range due {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load due record %s: %w", id, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// ListRecords returns every stored record.
func (s *BoltStore) ListRecords(ctx context.Context) ([]types.ResourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var record types.ResourceRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// rebuildIndex reloads the in-memory index from disk on open.
func (s *BoltStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var record types.ResourceRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			s.index.ReplaceOrInsert(&indexEntry{
				ResourceID:  record.ID,
				State:       record.State,
				ScheduledAt: derefTime(record.ScheduledDeletionAt),
			})
			return nil
		})
	})
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
