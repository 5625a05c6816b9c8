package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdeck/syncline/pkg/api"
)

// Resolution is the terminal state a human or policy assigns to a conflict.
type Resolution string

const (
	ResolutionPending    Resolution = "pending"
	ResolutionLocalWins  Resolution = "local-wins"
	ResolutionRemoteWins Resolution = "remote-wins"
	ResolutionMerged     Resolution = "merged"
)

// Valid reports whether r is a known terminal resolution. Pending is the
// initial state, not a resolution a caller may set.
func (r Resolution) Valid() bool {
	return r == ResolutionLocalWins || r == ResolutionRemoteWins || r == ResolutionMerged
}

// SyncConflict records one detected collision: an incoming event whose
// version did not strictly exceed the locally stored version. The incoming
// payload is retained verbatim so either side can still win.
type SyncConflict struct {
	ID            uint64          `json:"id"`
	EventID       string          `json:"event_id"`
	Entity        EntityKind      `json:"entity"`
	EntityID      string          `json:"entity_id"`
	LocalVersion  int64           `json:"local_version"`
	RemoteVersion int64           `json:"remote_version"`
	LocalData     json.RawMessage `json:"local_data,omitempty"`
	RemoteData    json.RawMessage `json:"remote_data,omitempty"`
	RemoteOp      Operation       `json:"remote_operation,omitempty"`
	Resolution    Resolution      `json:"resolution"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    time.Time       `json:"resolved_at,omitempty"`
}

// Resolved reports whether a terminal resolution has been set.
func (c *SyncConflict) Resolved() bool {
	return c.Resolution != "" && c.Resolution != ResolutionPending
}

// WinningVersion returns a version strictly greater than both sides,
// used when a resolution re-emits the winning payload as a fresh event.
func (c *SyncConflict) WinningVersion() int64 {
	v := c.LocalVersion
	if c.RemoteVersion > v {
		v = c.RemoteVersion
	}
	return v + 1
}

func (c *SyncConflict) String() string {
	return fmt.Sprintf("conflict %d on %s/%s (local v%d vs remote v%d, %s)",
		c.ID, c.Entity, c.EntityID, c.LocalVersion, c.RemoteVersion, c.Resolution)
}

// ToAPI converts to the wire form.
func (c *SyncConflict) ToAPI() api.SyncConflict {
	out := api.SyncConflict{
		ID:            c.ID,
		EventID:       c.EventID,
		Entity:        string(c.Entity),
		EntityID:      c.EntityID,
		LocalVersion:  c.LocalVersion,
		RemoteVersion: c.RemoteVersion,
		LocalData:     c.LocalData,
		RemoteData:    c.RemoteData,
		RemoteOp:      string(c.RemoteOp),
		Resolution:    string(c.Resolution),
		CreatedAt:     c.CreatedAt.Unix(),
	}
	if !c.ResolvedAt.IsZero() {
		out.ResolvedAt = c.ResolvedAt.Unix()
	}
	return out
}

// ConflictFromAPI converts a wire conflict to the domain model.
func ConflictFromAPI(c api.SyncConflict) *SyncConflict {
	out := &SyncConflict{
		ID:            c.ID,
		EventID:       c.EventID,
		Entity:        EntityKind(c.Entity),
		EntityID:      c.EntityID,
		LocalVersion:  c.LocalVersion,
		RemoteVersion: c.RemoteVersion,
		LocalData:     c.LocalData,
		RemoteData:    c.RemoteData,
		RemoteOp:      Operation(c.RemoteOp),
		Resolution:    Resolution(c.Resolution),
		CreatedAt:     time.Unix(c.CreatedAt, 0),
	}
	if c.ResolvedAt != 0 {
		out.ResolvedAt = time.Unix(c.ResolvedAt, 0)
	}
	return out
}
