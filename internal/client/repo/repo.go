// Package repo is the client-side data access layer. Every mutating method
// records the change in the Local Store's change log inside the same
// transaction as the entity write, so call sites cannot forget to record a
// mutation and a failed write never leaves a stray event behind.
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

// Repository exposes typed CRUD over the Local Store.
type Repository struct {
	store store.Store
}

// New creates a repository over the given Local Store.
func New(s store.Store) *Repository {
	return &Repository{store: s}
}

// Save upserts any tracked entity, minting an id when absent, and returns
// the change event recorded alongside the write.
func (r *Repository) Save(ctx context.Context, e models.Entity) (*models.SyncEvent, error) {
	id := e.EntityID()
	if id == "" {
		return nil, fmt.Errorf("entity id is empty")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.Kind(), err)
	}

	return r.store.PutEntity(ctx, e.Kind(), id, data, 0)
}

// Delete removes a tracked entity and returns the recorded DELETE event.
func (r *Repository) Delete(ctx context.Context, kind models.EntityKind, id string) (*models.SyncEvent, error) {
	return r.store.DeleteEntity(ctx, kind, id)
}

// NewID mints an entity identifier.
func NewID() string {
	return uuid.NewString()
}

// getAs loads one row and decodes its payload.
func getAs[T any](ctx context.Context, r *Repository, kind models.EntityKind, id string) (*T, error) {
	row, err := r.store.GetEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(row.Data, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s/%s: %w", kind, id, err)
	}
	return out, nil
}

// listAs loads every row of a kind and decodes the payloads.
func listAs[T any](ctx context.Context, r *Repository, kind models.EntityKind) ([]*T, error) {
	rows, err := r.store.ListEntities(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		item := new(T)
		if err := json.Unmarshal(row.Data, item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s/%s: %w", kind, row.ID, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// GetDeployment returns one deployment.
func (r *Repository) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	return getAs[models.Deployment](ctx, r, models.KindDeployment, id)
}

// ListDeployments returns all cached deployments.
func (r *Repository) ListDeployments(ctx context.Context) ([]*models.Deployment, error) {
	return listAs[models.Deployment](ctx, r, models.KindDeployment)
}

// GetProject returns one project.
func (r *Repository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return getAs[models.Project](ctx, r, models.KindProject, id)
}

// ListProjects returns all cached projects.
func (r *Repository) ListProjects(ctx context.Context) ([]*models.Project, error) {
	return listAs[models.Project](ctx, r, models.KindProject)
}

// GetArtifact returns one artifact.
func (r *Repository) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	return getAs[models.Artifact](ctx, r, models.KindArtifact, id)
}

// ListArtifacts returns all cached artifacts.
func (r *Repository) ListArtifacts(ctx context.Context) ([]*models.Artifact, error) {
	return listAs[models.Artifact](ctx, r, models.KindArtifact)
}

// GetQueueItem returns one queue item.
func (r *Repository) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	return getAs[models.QueueItem](ctx, r, models.KindQueueItem, id)
}

// ListQueueItems returns all cached queue items.
func (r *Repository) ListQueueItems(ctx context.Context) ([]*models.QueueItem, error) {
	return listAs[models.QueueItem](ctx, r, models.KindQueueItem)
}
