package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/syncline/pkg/api"
)

// EntityKind identifies which dashboard table an event belongs to.
type EntityKind string

const (
	KindDeployment EntityKind = "deployment"
	KindProject    EntityKind = "project"
	KindArtifact   EntityKind = "artifact"
	KindQueueItem  EntityKind = "queue_item"
)

// Kinds lists every synchronized entity kind.
var Kinds = []EntityKind{KindDeployment, KindProject, KindArtifact, KindQueueItem}

// Valid reports whether k names a synchronized entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindDeployment, KindProject, KindArtifact, KindQueueItem:
		return true
	}
	return false
}

// Operation is the mutation an event records.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is a known mutation.
func (op Operation) Valid() bool {
	return op == OpInsert || op == OpUpdate || op == OpDelete
}

// SyncEvent is an immutable record of one local or remote mutation.
// Version is the value the entity holds after the event applies; accepted
// events for one entity form a strictly increasing version sequence.
// Timestamp is wall-clock capture time and is advisory only; ordering
// decisions use Version exclusively.
type SyncEvent struct {
	ID        string          `json:"id"`
	Entity    EntityKind      `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Operation Operation       `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ClientID  string          `json:"client_id"`
	Version   int64           `json:"version"`
	Synced    bool            `json:"synced"` // client-local bookkeeping, never transmitted
}

// NewEventID mints a globally unique event id from the client identity,
// capture time, and a random suffix. Replays of the same id are idempotent
// on the server, so retried batches never double-apply.
func NewEventID(clientID string) string {
	return fmt.Sprintf("%s-%d-%s", clientID, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Stale reports whether an incoming version loses against a stored one.
// Equal versions are stale: two writers minted the same version, which is
// exactly the collision the conflict surface exists for.
func Stale(incoming, stored int64) bool {
	return incoming <= stored
}

// Validate checks the fields the server must never accept blind.
func (e *SyncEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is empty")
	}
	if !e.Entity.Valid() {
		return fmt.Errorf("unknown entity kind %q", e.Entity)
	}
	if !e.Operation.Valid() {
		return fmt.Errorf("unknown operation %q", e.Operation)
	}
	if e.EntityID == "" {
		return fmt.Errorf("event %s: entity id is empty", e.ID)
	}
	if e.Version <= 0 {
		return fmt.Errorf("event %s: version must be positive, got %d", e.ID, e.Version)
	}
	return nil
}

// ToAPI converts to the wire form, dropping the client-local synced flag.
func (e *SyncEvent) ToAPI() api.SyncEvent {
	return api.SyncEvent{
		ID:        e.ID,
		Entity:    string(e.Entity),
		EntityID:  e.EntityID,
		Operation: string(e.Operation),
		Data:      e.Data,
		Timestamp: e.Timestamp,
		ClientID:  e.ClientID,
		Version:   e.Version,
	}
}

// EventFromAPI converts a wire event to the domain model.
func EventFromAPI(e api.SyncEvent) *SyncEvent {
	return &SyncEvent{
		ID:        e.ID,
		Entity:    EntityKind(e.Entity),
		EntityID:  e.EntityID,
		Operation: Operation(e.Operation),
		Data:      e.Data,
		Timestamp: e.Timestamp,
		ClientID:  e.ClientID,
		Version:   e.Version,
	}
}
