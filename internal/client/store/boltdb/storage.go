// Package boltdb implements the client Local Store on bbolt. One bucket per
// entity kind holds cached rows, the change log and conflict table live in
// their own buckets, and sync metadata (client id, version counter, pull
// watermark) lives in a meta bucket. Entity writes and change-event appends
// share one bolt transaction, so neither can land without the other.
package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opsdeck/syncline/internal/models"
)

var (
	bucketEvents    = []byte("events")
	bucketEventIDs  = []byte("event_ids")
	bucketApplied   = []byte("applied_ids")
	bucketConflicts = []byte("conflicts")
	bucketMeta      = []byte("meta")

	entityBuckets = map[models.EntityKind][]byte{
		models.KindDeployment: []byte("deployments"),
		models.KindProject:    []byte("projects"),
		models.KindArtifact:   []byte("artifacts"),
		models.KindQueueItem:  []byte("queue_items"),
	}
)

// Meta bucket keys.
var (
	metaClientID       = []byte("client_id")
	metaVersionCounter = []byte("version_counter")
	metaWatermark      = []byte("watermark")
)

// Storage is the bbolt-backed Local Store.
type Storage struct {
	db *bbolt.DB
}

// New opens (or creates) the local database at dbPath and initializes all
// buckets.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEvents, bucketEventIDs, bucketApplied, bucketConflicts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		for _, name := range entityBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// entityBucket resolves the bucket for a kind, failing on unknown kinds so
// a malformed remote event can never create a stray table.
func entityBucket(tx *bbolt.Tx, kind models.EntityKind) (*bbolt.Bucket, error) {
	name, ok := entityBuckets[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return tx.Bucket(name), nil
}

// itob encodes a uint64 as a big-endian key so bolt cursors iterate in
// numeric order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
