package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

// AppendConflict files a pending conflict and assigns its id.
func (s *Storage) AppendConflict(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	filed := *c
	if filed.Resolution == "" {
		filed.Resolution = models.ResolutionPending
	}
	if filed.CreatedAt.IsZero() {
		filed.CreatedAt = time.Now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConflicts)

		// The channel and the pull path can both deliver the same collision;
		// one pending conflict per event id is enough.
		var existing *models.SyncConflict
		err := bucket.ForEach(func(k, v []byte) error {
			var c models.SyncConflict
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("failed to unmarshal conflict: %w", err)
			}
			if c.EventID == filed.EventID && !c.Resolved() {
				existing = &c
			}
			return nil
		})
		if err != nil {
			return err
		}
		if existing != nil {
			filed = *existing
			return nil
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate conflict id: %w", err)
		}
		filed.ID = seq

		data, err := json.Marshal(&filed)
		if err != nil {
			return fmt.Errorf("failed to marshal conflict: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append conflict: %w", err)
	}

	return &filed, nil
}

// GetConflict returns one conflict by id.
func (s *Storage) GetConflict(ctx context.Context, id uint64) (*models.SyncConflict, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var conflict *models.SyncConflict

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConflicts).Get(itob(id))
		if data == nil {
			return store.ErrConflictNotFound
		}
		conflict = &models.SyncConflict{}
		if err := json.Unmarshal(data, conflict); err != nil {
			return fmt.Errorf("failed to unmarshal conflict: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return conflict, nil
}

// PendingConflicts returns unresolved conflicts, oldest first.
func (s *Storage) PendingConflicts(ctx context.Context) ([]*models.SyncConflict, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var conflicts []*models.SyncConflict

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(k, v []byte) error {
			var c models.SyncConflict
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("failed to unmarshal conflict: %w", err)
			}
			if !c.Resolved() {
				conflicts = append(conflicts, &c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending conflicts: %w", err)
	}

	return conflicts, nil
}

// PendingConflictCount returns how many conflicts await resolution.
func (s *Storage) PendingConflictCount(ctx context.Context) (int, error) {
	conflicts, err := s.PendingConflicts(ctx)
	if err != nil {
		return 0, err
	}
	return len(conflicts), nil
}

// ResolveConflict records the terminal resolution. The transition is
// idempotent: resolving with the same outcome again is a no-op, while a
// different outcome is refused.
func (s *Storage) ResolveConflict(ctx context.Context, id uint64, r models.Resolution, at time.Time) (*models.SyncConflict, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}
	if !r.Valid() {
		return nil, fmt.Errorf("invalid resolution %q", r)
	}

	var resolved *models.SyncConflict

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConflicts)
		data := bucket.Get(itob(id))
		if data == nil {
			return store.ErrConflictNotFound
		}

		var c models.SyncConflict
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal conflict: %w", err)
		}

		if c.Resolved() {
			if c.Resolution == r {
				resolved = &c
				return nil
			}
			return store.ErrConflictResolved
		}

		c.Resolution = r
		c.ResolvedAt = at

		updated, err := json.Marshal(&c)
		if err != nil {
			return fmt.Errorf("failed to marshal conflict: %w", err)
		}
		if err := bucket.Put(itob(id), updated); err != nil {
			return fmt.Errorf("failed to update conflict: %w", err)
		}
		resolved = &c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}
