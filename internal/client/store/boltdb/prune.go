package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

// Prune applies the retention policy: acknowledged events past the event
// window, resolved conflicts past the conflict window, and per-kind entity
// rows above the history cap (oldest updated_at evicted first). Unsynced
// events and pending conflicts are never touched.
func (s *Storage) Prune(ctx context.Context, policy store.PrunePolicy) (store.PruneStats, error) {
	var stats store.PruneStats
	if s.db == nil {
		return stats, store.ErrStorageClosed
	}

	now := policy.Now
	if now.IsZero() {
		now = time.Now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if policy.EventRetention > 0 {
			n, err := pruneEventsTx(tx, now.Add(-policy.EventRetention))
			if err != nil {
				return err
			}
			stats.Events = n
		}
		if policy.ConflictRetention > 0 {
			n, err := pruneConflictsTx(tx, now.Add(-policy.ConflictRetention))
			if err != nil {
				return err
			}
			stats.Conflicts = n
		}
		if policy.EntityHistoryCap > 0 {
			n, err := capEntitiesTx(tx, policy.EntityHistoryCap)
			if err != nil {
				return err
			}
			stats.Entities = n
		}
		return nil
	})
	if err != nil {
		return store.PruneStats{}, fmt.Errorf("prune failed: %w", err)
	}

	return stats, nil
}

func pruneEventsTx(tx *bbolt.Tx, cutoff time.Time) (int, error) {
	events := tx.Bucket(bucketEvents)
	index := tx.Bucket(bucketEventIDs)
	cutoffMillis := cutoff.UnixMilli()

	var stale [][]byte
	var staleIDs []string

	err := events.ForEach(func(k, v []byte) error {
		var event models.SyncEvent
		if err := json.Unmarshal(v, &event); err != nil {
			return fmt.Errorf("failed to unmarshal event: %w", err)
		}
		if event.Synced && event.Timestamp < cutoffMillis {
			stale = append(stale, append([]byte(nil), k...))
			staleIDs = append(staleIDs, event.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i, key := range stale {
		if err := events.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to prune event: %w", err)
		}
		if err := index.Delete([]byte(staleIDs[i])); err != nil {
			return 0, fmt.Errorf("failed to prune event index: %w", err)
		}
	}
	return len(stale), nil
}

func pruneConflictsTx(tx *bbolt.Tx, cutoff time.Time) (int, error) {
	bucket := tx.Bucket(bucketConflicts)

	var stale [][]byte
	err := bucket.ForEach(func(k, v []byte) error {
		var c models.SyncConflict
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("failed to unmarshal conflict: %w", err)
		}
		if c.Resolved() && !c.ResolvedAt.IsZero() && c.ResolvedAt.Before(cutoff) {
			stale = append(stale, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range stale {
		if err := bucket.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to prune conflict: %w", err)
		}
	}
	return len(stale), nil
}

func capEntitiesTx(tx *bbolt.Tx, limit int) (int, error) {
	evicted := 0

	for kind := range entityBuckets {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return 0, err
		}

		var rows []*store.EntityRow
		err = bucket.ForEach(func(k, v []byte) error {
			var row store.EntityRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to unmarshal row: %w", err)
			}
			rows = append(rows, &row)
			return nil
		})
		if err != nil {
			return 0, err
		}
		if len(rows) <= limit {
			continue
		}

		sort.Slice(rows, func(i, j int) bool {
			return rows[i].UpdatedAt.Before(rows[j].UpdatedAt)
		})
		for _, row := range rows[:len(rows)-limit] {
			if err := bucket.Delete([]byte(row.ID)); err != nil {
				return 0, fmt.Errorf("failed to evict row: %w", err)
			}
			evicted++
		}
	}

	return evicted, nil
}
