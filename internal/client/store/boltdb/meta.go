package boltdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/opsdeck/syncline/internal/client/store"
)

// ClientID returns this client's stable opaque identity, minting and
// persisting one on first use.
func (s *Storage) ClientID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", store.ErrStorageClosed
	}

	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = clientIDTx(tx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to load client id: %w", err)
	}

	return id, nil
}

func clientIDTx(tx *bbolt.Tx) (string, error) {
	meta := tx.Bucket(bucketMeta)
	if raw := meta.Get(metaClientID); raw != nil {
		return string(raw), nil
	}
	id := uuid.NewString()
	if !tx.Writable() {
		return "", fmt.Errorf("client id not yet minted")
	}
	if err := meta.Put(metaClientID, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to persist client id: %w", err)
	}
	return id, nil
}

// Watermark returns the last server sequence this client has pulled.
func (s *Storage) Watermark(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, store.ErrStorageClosed
	}

	var seq int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		seq = int64(btoi(tx.Bucket(bucketMeta).Get(metaWatermark)))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read watermark: %w", err)
	}

	return seq, nil
}

// SetWatermark persists a new pull watermark. It never moves backwards.
func (s *Storage) SetWatermark(ctx context.Context, seq int64) error {
	if s.db == nil {
		return store.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if current := int64(btoi(meta.Get(metaWatermark))); seq <= current {
			return nil
		}
		return meta.Put(metaWatermark, itob(uint64(seq)))
	})
	if err != nil {
		return fmt.Errorf("failed to persist watermark: %w", err)
	}

	return nil
}

// nextVersionTx allocates the next value of the client's shared version
// counter, bumped to at least min when a caller must exceed known versions.
func nextVersionTx(tx *bbolt.Tx, min int64) (int64, error) {
	meta := tx.Bucket(bucketMeta)
	current := int64(btoi(meta.Get(metaVersionCounter)))

	next := current + 1
	if next < min {
		next = min
	}
	if err := meta.Put(metaVersionCounter, itob(uint64(next))); err != nil {
		return 0, fmt.Errorf("failed to advance version counter: %w", err)
	}
	return next, nil
}

// advanceVersionTx raises the counter to at least v without consuming a
// version, used when applying remote events.
func advanceVersionTx(tx *bbolt.Tx, v int64) error {
	meta := tx.Bucket(bucketMeta)
	if current := int64(btoi(meta.Get(metaVersionCounter))); v <= current {
		return nil
	}
	if err := meta.Put(metaVersionCounter, itob(uint64(v))); err != nil {
		return fmt.Errorf("failed to advance version counter: %w", err)
	}
	return nil
}
