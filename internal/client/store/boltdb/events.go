package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

// appendEventTx appends one change event to the log inside an open write
// transaction. The log is keyed by a local append sequence so cursors walk
// it oldest first; a secondary index maps event id to log key.
func appendEventTx(tx *bbolt.Tx, event *models.SyncEvent) error {
	events := tx.Bucket(bucketEvents)
	ids := tx.Bucket(bucketEventIDs)

	seq, err := events.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate event sequence: %w", err)
	}
	key := itob(seq)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := events.Put(key, data); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := ids.Put([]byte(event.ID), key); err != nil {
		return fmt.Errorf("failed to index event id: %w", err)
	}
	return nil
}

// UnsyncedEvents returns up to limit unacknowledged events, oldest first.
// A limit <= 0 returns all of them.
func (s *Storage) UnsyncedEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var events []*models.SyncEvent

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var event models.SyncEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}
			if event.Synced {
				continue
			}
			events = append(events, &event)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read unsynced events: %w", err)
	}

	return events, nil
}

// MarkSynced flips the synced flag for the given event ids. Ids that are
// unknown (already pruned) are skipped.
func (s *Storage) MarkSynced(ctx context.Context, ids []string) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}
	if len(ids) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		index := tx.Bucket(bucketEventIDs)

		for _, id := range ids {
			key := index.Get([]byte(id))
			if key == nil {
				continue
			}
			raw := events.Get(key)
			if raw == nil {
				continue
			}
			var event models.SyncEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event %s: %w", id, err)
			}
			if event.Synced {
				continue
			}
			event.Synced = true
			data, err := json.Marshal(&event)
			if err != nil {
				return fmt.Errorf("failed to marshal event %s: %w", id, err)
			}
			if err := events.Put(key, data); err != nil {
				return fmt.Errorf("failed to update event %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark events synced: %w", err)
	}

	return nil
}

// UnsyncedCount returns how many change events still await acknowledgement.
func (s *Storage) UnsyncedCount(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, store.ErrStorageClosed
	}

	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(k, v []byte) error {
			var event models.SyncEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}
			if !event.Synced {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced events: %w", err)
	}

	return count, nil
}
