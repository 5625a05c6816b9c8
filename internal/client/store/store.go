// Package store defines the client-local persistence surface: cached entity
// rows, the append-only change log, the conflict table, and sync metadata.
// The boltdb subpackage is the durable implementation.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opsdeck/syncline/internal/models"
)

// EntityRow is one locally cached entity with its version envelope.
// Data is the opaque payload; Version increases monotonically across every
// successful write, local or remote.
type EntityRow struct {
	Kind      models.EntityKind `json:"kind"`
	ID        string            `json:"id"`
	Version   int64             `json:"version"`
	Data      json.RawMessage   `json:"data"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ApplyStatus is the outcome of applying a remote event.
type ApplyStatus int

const (
	// ApplyApplied means the event won the version check and was applied.
	ApplyApplied ApplyStatus = iota
	// ApplyStale means the event's version did not strictly exceed the
	// stored version; the row was not mutated and a conflict should be filed.
	ApplyStale
	// ApplyDuplicate means this event id was already applied once; redelivery
	// is ignored entirely, with no conflict.
	ApplyDuplicate
)

// EntityStore mutates cached entities. Local mutations append a change
// event in the same transaction as the entity write: if either fails,
// both roll back. Remote applications go through ApplyRemote, which
// enforces the strictly-increasing-version rule instead of appending.
type EntityStore interface {
	// PutEntity upserts a row and appends an INSERT or UPDATE change event.
	// The event version is the next value of the client's shared counter,
	// bumped to at least minVersion when a resolution re-emit must exceed
	// both conflicting versions. Pass 0 for ordinary mutations.
	PutEntity(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage, minVersion int64) (*models.SyncEvent, error)

	// DeleteEntity removes a row and appends a DELETE change event carrying
	// just the identifier.
	DeleteEntity(ctx context.Context, kind models.EntityKind, id string) (*models.SyncEvent, error)

	// GetEntity returns one row or ErrEntityNotFound.
	GetEntity(ctx context.Context, kind models.EntityKind, id string) (*EntityRow, error)

	// ListEntities returns every row of one kind.
	ListEntities(ctx context.Context, kind models.EntityKind) ([]*EntityRow, error)

	// ApplyRemote applies a remote event iff its version strictly exceeds
	// the stored version and the event id has not been applied before.
	// On ApplyStale, local is the untouched row so the caller can file a
	// conflict. No change event is appended in any case.
	ApplyRemote(ctx context.Context, event *models.SyncEvent) (status ApplyStatus, local *EntityRow, err error)

	// ForcePut writes a row bypassing the version check and without
	// appending a change event. Used by conflict resolution, where a human
	// decision overrides version ordering.
	ForcePut(ctx context.Context, kind models.EntityKind, id string, data json.RawMessage, version int64) error

	// ForceDelete removes a row bypassing the version check, without
	// appending a change event. Deleting an absent row is a no-op.
	ForceDelete(ctx context.Context, kind models.EntityKind, id string, version int64) error
}

// EventLog reads and acknowledges the client's change log.
type EventLog interface {
	// UnsyncedEvents returns up to limit unacknowledged events, oldest first.
	UnsyncedEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error)

	// MarkSynced flips the synced flag for the given event ids. Unknown ids
	// are ignored; acknowledgements may race pruning.
	MarkSynced(ctx context.Context, ids []string) error

	// UnsyncedCount returns how many events still await acknowledgement.
	UnsyncedCount(ctx context.Context) (int, error)
}

// ConflictStore is the queryable conflict surface.
type ConflictStore interface {
	// AppendConflict files a new pending conflict and returns it with its
	// assigned id. Filing the same event id twice while the first conflict
	// is still pending returns the existing conflict instead of a duplicate.
	AppendConflict(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error)

	// GetConflict returns one conflict or ErrConflictNotFound.
	GetConflict(ctx context.Context, id uint64) (*models.SyncConflict, error)

	// PendingConflicts returns unresolved conflicts, oldest first.
	PendingConflicts(ctx context.Context) ([]*models.SyncConflict, error)

	// PendingConflictCount returns how many conflicts await resolution.
	PendingConflictCount(ctx context.Context) (int, error)

	// ResolveConflict sets the terminal resolution. Setting the same
	// resolution twice is a no-op; a different one returns
	// ErrConflictResolved.
	ResolveConflict(ctx context.Context, id uint64, r models.Resolution, at time.Time) (*models.SyncConflict, error)
}

// MetaStore holds per-client sync bookkeeping.
type MetaStore interface {
	// ClientID returns the stable opaque identity of this client, minting
	// and persisting one on first use.
	ClientID(ctx context.Context) (string, error)

	// Watermark returns the last server sequence this client has pulled.
	Watermark(ctx context.Context) (int64, error)

	// SetWatermark persists a new pull watermark.
	SetWatermark(ctx context.Context, seq int64) error
}

// PrunePolicy bounds local retention.
type PrunePolicy struct {
	// EventRetention prunes synced events captured before now-EventRetention.
	EventRetention time.Duration
	// ConflictRetention prunes resolved conflicts older than this.
	ConflictRetention time.Duration
	// EntityHistoryCap caps rows per entity kind, evicting oldest first.
	EntityHistoryCap int
	// Now is the reference time; zero means time.Now.
	Now time.Time
}

// PruneStats reports what a prune pass removed.
type PruneStats struct {
	Events    int
	Conflicts int
	Entities  int
}

// Pruner applies a retention policy.
type Pruner interface {
	Prune(ctx context.Context, policy PrunePolicy) (PruneStats, error)
}

// Store is the full client-local persistence surface.
type Store interface {
	EntityStore
	EventLog
	ConflictStore
	MetaStore
	Pruner
}
