// Package storage defines the server-of-record persistence surface: the
// canonical per-entity versions and the durable append-only synced-event log
// that pulls read from.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/opsdeck/syncline/internal/models"
)

// ErrEntityNotFound is returned when a canonical row does not exist.
var ErrEntityNotFound = errors.New("entity not found")

// Outcome classifies one event's acceptance decision.
type Outcome int

const (
	// Accepted means the event won the version check and was applied.
	Accepted Outcome = iota
	// Duplicate means the event id was applied earlier; replay counts as
	// accepted but nothing is reapplied or rebroadcast.
	Duplicate
	// Stale means the event's version did not exceed the canonical version.
	Stale
)

// ApplyResult reports what happened to one pushed event.
type ApplyResult struct {
	Outcome Outcome
	// Seq is the server sequence assigned to an accepted event.
	Seq int64
	// StoredVersion, StoredData and StoredDeleted describe the canonical
	// row when the event was stale, for conflict reporting.
	StoredVersion int64
	StoredData    json.RawMessage
	StoredDeleted bool
}

// DataStorage is the canonical store behind the sync service.
type DataStorage interface {
	// ApplyEvent runs the acceptance check and, when the event wins,
	// applies it and appends it to the synced-event log in one transaction.
	ApplyEvent(ctx context.Context, event *models.SyncEvent) (*ApplyResult, error)

	// EventsSince returns durable events with sequence greater than
	// sinceSeq, excluding those originated by excludeClient, plus the
	// watermark the client should persist.
	EventsSince(ctx context.Context, sinceSeq int64, excludeClient string) ([]*models.SyncEvent, int64, error)

	// CurrentSeq returns the newest assigned server sequence.
	CurrentSeq(ctx context.Context) (int64, error)

	// PruneEvents removes log entries captured before the cutoff and
	// returns how many were removed. Canonical rows are never pruned.
	PruneEvents(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying database.
	Close() error
}
