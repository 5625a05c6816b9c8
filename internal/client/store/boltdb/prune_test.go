package boltdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

func TestStorage_Prune_Events(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	events := appendTestEvents(t, s, 3)

	// Two acknowledged, one still pending.
	require.NoError(t, s.MarkSynced(ctx, []string{events[0].ID, events[1].ID}))

	// A reference time far in the future makes every synced event stale.
	stats, err := s.Prune(ctx, store.PrunePolicy{
		EventRetention: time.Hour,
		Now:            time.Now().Add(365 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Events)

	// The unsynced event survives regardless of age.
	count, err := s.UnsyncedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStorage_Prune_EventsWithinRetentionKept(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	events := appendTestEvents(t, s, 2)
	require.NoError(t, s.MarkSynced(ctx, []string{events[0].ID, events[1].ID}))

	stats, err := s.Prune(ctx, store.PrunePolicy{EventRetention: time.Hour})
	require.NoError(t, err)
	assert.Zero(t, stats.Events)
}

func TestStorage_Prune_Conflicts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	resolved, err := s.AppendConflict(ctx, testConflict("evt-1"))
	require.NoError(t, err)
	pending, err := s.AppendConflict(ctx, testConflict("evt-2"))
	require.NoError(t, err)

	_, err = s.ResolveConflict(ctx, resolved.ID, models.ResolutionLocalWins, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)

	stats, err := s.Prune(ctx, store.PrunePolicy{ConflictRetention: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Conflicts)

	// The pending conflict is untouchable.
	_, err = s.GetConflict(ctx, pending.ID)
	require.NoError(t, err)
	_, err = s.GetConflict(ctx, resolved.ID)
	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

func TestStorage_Prune_EntityHistoryCap(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("q-%d", i)
		_, err := s.PutEntity(ctx, models.KindQueueItem, id, payload(t, map[string]string{"id": id}), 0)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // distinct updated_at for eviction order
	}

	stats, err := s.Prune(ctx, store.PrunePolicy{EntityHistoryCap: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)

	rows, err := s.ListEntities(ctx, models.KindQueueItem)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Oldest rows were evicted first.
	_, err = s.GetEntity(ctx, models.KindQueueItem, "q-0")
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
	_, err = s.GetEntity(ctx, models.KindQueueItem, "q-4")
	assert.NoError(t, err)
}

func TestStorage_Prune_ZeroPolicyIsNoop(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	appendTestEvents(t, s, 2)

	stats, err := s.Prune(ctx, store.PrunePolicy{})
	require.NoError(t, err)
	assert.Equal(t, store.PruneStats{}, stats)
}
