package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

func TestStorage_PutEntity(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	data := payload(t, map[string]string{"name": "billing"})

	event, err := s.PutEntity(ctx, models.KindProject, "proj-1", data, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OpInsert, event.Operation)
	assert.Equal(t, int64(1), event.Version)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Synced)

	row, err := s.GetEntity(ctx, models.KindProject, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Version)
	assert.JSONEq(t, string(data), string(row.Data))

	// A second write to the same row is an UPDATE with the next version.
	updated := payload(t, map[string]string{"name": "billing-v2"})
	event, err = s.PutEntity(ctx, models.KindProject, "proj-1", updated, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OpUpdate, event.Operation)
	assert.Equal(t, int64(2), event.Version)

	row, err = s.GetEntity(ctx, models.KindProject, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Version)
}

func TestStorage_PutEntity_MinVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	event, err := s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"v": "1"}), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), event.Version)

	// The counter keeps going from the bumped value.
	event, err = s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"v": "2"}), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), event.Version)
}

func TestStorage_PutEntity_EmptyID(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.PutEntity(context.Background(), models.KindProject, "", nil, 0)
	assert.Error(t, err)
}

func TestStorage_VersionCounterSharedAcrossKinds(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e1, err := s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"a": "1"}), 0)
	require.NoError(t, err)
	e2, err := s.PutEntity(ctx, models.KindDeployment, "dep-1", payload(t, map[string]string{"b": "2"}), 0)
	require.NoError(t, err)
	e3, err := s.DeleteEntity(ctx, models.KindProject, "proj-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), e1.Version)
	assert.Equal(t, int64(2), e2.Version)
	assert.Equal(t, int64(3), e3.Version)
}

func TestStorage_DeleteEntity(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.PutEntity(ctx, models.KindArtifact, "art-1", payload(t, map[string]string{"name": "bundle"}), 0)
	require.NoError(t, err)

	event, err := s.DeleteEntity(ctx, models.KindArtifact, "art-1")
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, event.Operation)
	assert.JSONEq(t, `{"id":"art-1"}`, string(event.Data))

	_, err = s.GetEntity(ctx, models.KindArtifact, "art-1")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestStorage_DeleteEntity_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.DeleteEntity(context.Background(), models.KindArtifact, "missing")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestStorage_ListEntities(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"q-1", "q-2", "q-3"} {
		_, err := s.PutEntity(ctx, models.KindQueueItem, id, payload(t, map[string]string{"id": id}), 0)
		require.NoError(t, err)
	}

	rows, err := s.ListEntities(ctx, models.KindQueueItem)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// Other kinds stay empty.
	rows, err = s.ListEntities(ctx, models.KindProject)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStorage_ApplyRemote(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	remote := &models.SyncEvent{
		ID:        "peer-1-100-aaaa",
		Entity:    models.KindProject,
		EntityID:  "proj-1",
		Operation: models.OpInsert,
		Data:      payload(t, map[string]string{"name": "from-peer"}),
		Timestamp: 100,
		ClientID:  "peer-1",
		Version:   5,
	}

	status, row, err := s.ApplyRemote(ctx, remote)
	require.NoError(t, err)
	assert.Equal(t, store.ApplyApplied, status)
	require.NotNil(t, row)
	assert.Equal(t, int64(5), row.Version)

	// No change event is appended for remote applications.
	count, err := s.UnsyncedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The local counter moved past the applied version, so the next local
	// mutation cannot collide with it.
	event, err := s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"name": "local"}), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), event.Version)
}

func TestStorage_ApplyRemote_Stale(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	localData := payload(t, map[string]string{"name": "local"})
	local, err := s.PutEntity(ctx, models.KindProject, "proj-1", localData, 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), local.Version)

	tests := []struct {
		name    string
		version int64
	}{
		{name: "lower version is stale", version: 2},
		{name: "equal version is stale", version: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, row, err := s.ApplyRemote(ctx, &models.SyncEvent{
				ID:        "peer-1-100-" + tt.name,
				Entity:    models.KindProject,
				EntityID:  "proj-1",
				Operation: models.OpUpdate,
				Data:      payload(t, map[string]string{"name": "remote"}),
				Timestamp: 100,
				ClientID:  "peer-1",
				Version:   tt.version,
			})
			require.NoError(t, err)
			assert.Equal(t, store.ApplyStale, status)

			// The untouched local row comes back so a conflict can be filed.
			require.NotNil(t, row)
			assert.Equal(t, int64(3), row.Version)
			assert.JSONEq(t, string(localData), string(row.Data))
		})
	}
}

func TestStorage_ApplyRemote_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	remote := &models.SyncEvent{
		ID:        "peer-1-100-aaaa",
		Entity:    models.KindProject,
		EntityID:  "proj-1",
		Operation: models.OpInsert,
		Data:      payload(t, map[string]string{"name": "from-peer"}),
		Timestamp: 100,
		ClientID:  "peer-1",
		Version:   5,
	}

	status, _, err := s.ApplyRemote(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, store.ApplyApplied, status)

	// Redelivery of the same event id is ignored, not a conflict, even
	// though its version is now stale against the stored row.
	status, _, err = s.ApplyRemote(ctx, remote)
	require.NoError(t, err)
	assert.Equal(t, store.ApplyDuplicate, status)
}

func TestStorage_ApplyRemote_Delete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"name": "x"}), 0)
	require.NoError(t, err)

	status, _, err := s.ApplyRemote(ctx, &models.SyncEvent{
		ID:        "peer-1-100-del",
		Entity:    models.KindProject,
		EntityID:  "proj-1",
		Operation: models.OpDelete,
		Data:      payload(t, map[string]string{"id": "proj-1"}),
		Timestamp: 100,
		ClientID:  "peer-1",
		Version:   9,
	})
	require.NoError(t, err)
	assert.Equal(t, store.ApplyApplied, status)

	_, err = s.GetEntity(ctx, models.KindProject, "proj-1")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestStorage_ForcePut(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"name": "x"}), 4)
	require.NoError(t, err)

	// Equal version would fail the version check; ForcePut bypasses it.
	data := payload(t, map[string]string{"name": "resolved"})
	require.NoError(t, s.ForcePut(ctx, models.KindProject, "proj-1", data, 4))

	row, err := s.GetEntity(ctx, models.KindProject, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.Version)
	assert.JSONEq(t, string(data), string(row.Data))

	// No change event was appended for the forced write.
	count, err := s.UnsyncedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count) // only the original PutEntity event
}

func TestStorage_ForceDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.PutEntity(ctx, models.KindProject, "proj-1", payload(t, map[string]string{"name": "x"}), 0)
	require.NoError(t, err)

	require.NoError(t, s.ForceDelete(ctx, models.KindProject, "proj-1", 5))

	_, err = s.GetEntity(ctx, models.KindProject, "proj-1")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)

	// Absent row is a no-op.
	require.NoError(t, s.ForceDelete(ctx, models.KindProject, "missing", 6))
}
