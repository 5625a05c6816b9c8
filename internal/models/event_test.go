package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventID(t *testing.T) {
	id := NewEventID("client-1")
	assert.True(t, strings.HasPrefix(id, "client-1-"))

	// Two ids minted back to back never collide.
	other := NewEventID("client-1")
	assert.NotEqual(t, id, other)
}

func TestStale(t *testing.T) {
	tests := []struct {
		name     string
		incoming int64
		stored   int64
		want     bool
	}{
		{name: "newer version wins", incoming: 5, stored: 4, want: false},
		{name: "equal version is stale", incoming: 4, stored: 4, want: true},
		{name: "older version is stale", incoming: 3, stored: 4, want: true},
		{name: "first write over empty row", incoming: 1, stored: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stale(tt.incoming, tt.stored))
		})
	}
}

func TestSyncEvent_Validate(t *testing.T) {
	valid := func() *SyncEvent {
		return &SyncEvent{
			ID:        "client-1-100-aaaa",
			Entity:    KindProject,
			EntityID:  "proj-1",
			Operation: OpInsert,
			Version:   1,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(e *SyncEvent)
	}{
		{name: "empty id", mutate: func(e *SyncEvent) { e.ID = "" }},
		{name: "unknown kind", mutate: func(e *SyncEvent) { e.Entity = "widget" }},
		{name: "unknown operation", mutate: func(e *SyncEvent) { e.Operation = "UPSERT" }},
		{name: "empty entity id", mutate: func(e *SyncEvent) { e.EntityID = "" }},
		{name: "zero version", mutate: func(e *SyncEvent) { e.Version = 0 }},
		{name: "negative version", mutate: func(e *SyncEvent) { e.Version = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestEntityKind_Valid(t *testing.T) {
	for _, kind := range Kinds {
		assert.True(t, kind.Valid(), kind)
	}
	assert.False(t, EntityKind("widget").Valid())
	assert.False(t, EntityKind("").Valid())
}

func TestSyncEvent_ToAPI_DropsSyncedFlag(t *testing.T) {
	e := &SyncEvent{
		ID:        "client-1-100-aaaa",
		Entity:    KindDeployment,
		EntityID:  "dep-1",
		Operation: OpUpdate,
		Version:   3,
		ClientID:  "client-1",
		Synced:    true,
	}

	wire := e.ToAPI()
	back := EventFromAPI(wire)

	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, e.Entity, back.Entity)
	assert.Equal(t, e.Version, back.Version)
	assert.False(t, back.Synced)
}
