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

// deleteMarker is the payload a DELETE event carries: just the identifier.
type deleteMarker struct {
	ID string `json:"id"`
}

// PutEntity upserts an entity row and appends the matching INSERT or UPDATE
// change event in the same transaction.
func (s *Storage) PutEntity(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage, minVersion int64) (*models.SyncEvent, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}
	if id == "" {
		return nil, fmt.Errorf("entity id is empty")
	}

	var event *models.SyncEvent

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return err
		}

		op := models.OpInsert
		if bucket.Get([]byte(id)) != nil {
			op = models.OpUpdate
		}

		clientID, err := clientIDTx(tx)
		if err != nil {
			return err
		}
		version, err := nextVersionTx(tx, minVersion)
		if err != nil {
			return err
		}

		now := time.Now()
		row := store.EntityRow{
			Kind:      kind,
			ID:        id,
			Version:   version,
			Data:      data,
			UpdatedAt: now,
		}
		if err := putRowTx(bucket, &row); err != nil {
			return err
		}

		event = &models.SyncEvent{
			ID:        models.NewEventID(clientID),
			Entity:    kind,
			EntityID:  id,
			Operation: op,
			Data:      data,
			Timestamp: now.UnixMilli(),
			ClientID:  clientID,
			Version:   version,
		}
		return appendEventTx(tx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put %s/%s: %w", kind, id, err)
	}

	return event, nil
}

// DeleteEntity removes an entity row and appends the DELETE change event in
// the same transaction. The event payload carries only the identifier.
func (s *Storage) DeleteEntity(ctx context.Context, kind models.EntityKind, id string) (*models.SyncEvent, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var event *models.SyncEvent

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return err
		}
		if bucket.Get([]byte(id)) == nil {
			return store.ErrEntityNotFound
		}

		clientID, err := clientIDTx(tx)
		if err != nil {
			return err
		}
		version, err := nextVersionTx(tx, 0)
		if err != nil {
			return err
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete row: %w", err)
		}

		data, err := json.Marshal(deleteMarker{ID: id})
		if err != nil {
			return fmt.Errorf("failed to marshal delete marker: %w", err)
		}

		event = &models.SyncEvent{
			ID:        models.NewEventID(clientID),
			Entity:    kind,
			EntityID:  id,
			Operation: models.OpDelete,
			Data:      data,
			Timestamp: time.Now().UnixMilli(),
			ClientID:  clientID,
			Version:   version,
		}
		return appendEventTx(tx, event)
	})
	if err != nil {
		if err == store.ErrEntityNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete %s/%s: %w", kind, id, err)
	}

	return event, nil
}

// GetEntity returns one cached row.
func (s *Storage) GetEntity(ctx context.Context, kind models.EntityKind, id string) (*store.EntityRow, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var row *store.EntityRow

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return err
		}
		row, err = getRowTx(bucket, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return row, nil
}

// ListEntities returns every cached row of one kind.
func (s *Storage) ListEntities(ctx context.Context, kind models.EntityKind) ([]*store.EntityRow, error) {
	if s.db == nil {
		return nil, store.ErrStorageClosed
	}

	var rows []*store.EntityRow

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var row store.EntityRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to unmarshal row: %w", err)
			}
			rows = append(rows, &row)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	return rows, nil
}

// ApplyRemote applies a remote event under the strictly-increasing-version
// rule. A stale event leaves the row untouched and returns it so the caller
// can file a conflict. Redelivery of an already-applied event id (the
// transport may duplicate) is reported as a duplicate and ignored.
func (s *Storage) ApplyRemote(ctx context.Context, event *models.SyncEvent) (store.ApplyStatus, *store.EntityRow, error) {
	if s.db == nil {
		return store.ApplyStale, nil, store.ErrStorageClosed
	}
	if err := event.Validate(); err != nil {
		return store.ApplyStale, nil, err
	}

	var (
		status = store.ApplyStale
		local  *store.EntityRow
	)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		applied := tx.Bucket(bucketApplied)
		if applied.Get([]byte(event.ID)) != nil {
			status = store.ApplyDuplicate
			return nil
		}

		bucket, err := entityBucket(tx, event.Entity)
		if err != nil {
			return err
		}

		row, err := getRowTx(bucket, event.EntityID)
		if err != nil && err != store.ErrEntityNotFound {
			return err
		}

		var stored int64
		if row != nil {
			stored = row.Version
		}

		if models.Stale(event.Version, stored) {
			local = row
			return nil
		}

		switch event.Operation {
		case models.OpDelete:
			if err := bucket.Delete([]byte(event.EntityID)); err != nil {
				return fmt.Errorf("failed to delete row: %w", err)
			}
		default:
			newRow := store.EntityRow{
				Kind:      event.Entity,
				ID:        event.EntityID,
				Version:   event.Version,
				Data:      event.Data,
				UpdatedAt: time.Now(),
			}
			if err := putRowTx(bucket, &newRow); err != nil {
				return err
			}
			local = &newRow
		}

		if err := applied.Put([]byte(event.ID), itob(uint64(event.Version))); err != nil {
			return fmt.Errorf("failed to record applied event id: %w", err)
		}

		// Keep locally minted versions ahead of everything observed, so the
		// next local mutation cannot collide with a version the server has
		// already accepted.
		if err := advanceVersionTx(tx, event.Version); err != nil {
			return err
		}

		status = store.ApplyApplied
		return nil
	})
	if err != nil {
		return store.ApplyStale, nil, fmt.Errorf("failed to apply remote event %s: %w", event.ID, err)
	}

	return status, local, nil
}

// ForcePut writes a row bypassing the version check; conflict resolution
// uses it when the human decision overrides version ordering. No change
// event is appended.
func (s *Storage) ForcePut(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage, version int64) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return err
		}
		row := store.EntityRow{
			Kind:      kind,
			ID:        id,
			Version:   version,
			Data:      data,
			UpdatedAt: time.Now(),
		}
		if err := putRowTx(bucket, &row); err != nil {
			return err
		}
		return advanceVersionTx(tx, version)
	})
	if err != nil {
		return fmt.Errorf("failed to force-put %s/%s: %w", kind, id, err)
	}

	return nil
}

// ForceDelete removes a row bypassing the version check. Deleting an
// absent row is a no-op.
func (s *Storage) ForceDelete(ctx context.Context, kind models.EntityKind, id string, version int64) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := entityBucket(tx, kind)
		if err != nil {
			return err
		}
		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete row: %w", err)
		}
		return advanceVersionTx(tx, version)
	})
	if err != nil {
		return fmt.Errorf("failed to force-delete %s/%s: %w", kind, id, err)
	}

	return nil
}

func putRowTx(bucket *bbolt.Bucket, row *store.EntityRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	if err := bucket.Put([]byte(row.ID), data); err != nil {
		return fmt.Errorf("failed to save row: %w", err)
	}
	return nil
}

func getRowTx(bucket *bbolt.Bucket, id string) (*store.EntityRow, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, store.ErrEntityNotFound
	}
	row := &store.EntityRow{}
	if err := json.Unmarshal(data, row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	return row, nil
}
