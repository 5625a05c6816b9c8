package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/client/store/boltdb"
	"github.com/opsdeck/syncline/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	s, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return New(s)
}

func TestRepository_SaveAndGet(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	project := &models.Project{
		ID:         NewID(),
		Name:       "billing",
		Repository: "git@example.com:ops/billing",
		Branch:     "main",
	}

	event, err := r.Save(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, models.KindProject, event.Entity)
	assert.Equal(t, project.ID, event.EntityID)
	assert.Equal(t, models.OpInsert, event.Operation)

	got, err := r.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Name, got.Name)
	assert.Equal(t, project.Branch, got.Branch)
}

func TestRepository_SaveAllKinds(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	entities := []models.Entity{
		&models.Deployment{ID: NewID(), ProjectID: "proj-1", Environment: "staging", Status: "running"},
		&models.Project{ID: NewID(), Name: "billing"},
		&models.Artifact{ID: NewID(), DeploymentID: "dep-1", Name: "bundle.tar.gz", SizeBytes: 1024},
		&models.QueueItem{ID: NewID(), Type: "deploy", Priority: 2},
	}

	for _, e := range entities {
		event, err := r.Save(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, e.Kind(), event.Entity)
	}

	deployments, err := r.ListDeployments(ctx)
	require.NoError(t, err)
	assert.Len(t, deployments, 1)

	items, err := r.ListQueueItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "deploy", items[0].Type)
}

func TestRepository_Delete(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	artifact := &models.Artifact{ID: NewID(), Name: "bundle"}
	_, err := r.Save(ctx, artifact)
	require.NoError(t, err)

	event, err := r.Delete(ctx, models.KindArtifact, artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, event.Operation)

	_, err = r.GetArtifact(ctx, artifact.ID)
	assert.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestRepository_UpdateBumpsVersion(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	project := &models.Project{ID: NewID(), Name: "billing"}

	first, err := r.Save(ctx, project)
	require.NoError(t, err)

	project.Name = "billing-v2"
	second, err := r.Save(ctx, project)
	require.NoError(t, err)

	assert.Equal(t, models.OpUpdate, second.Operation)
	assert.Greater(t, second.Version, first.Version)
}
