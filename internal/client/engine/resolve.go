package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
)

// Resolve applies a terminal resolution to a pending conflict.
//
//   - local-wins re-emits the local payload as a fresh change event whose
//     version exceeds both sides, so the local state propagates.
//   - remote-wins writes the remote payload (or delete) over the local row.
//   - merged behaves like local-wins with a resolver-supplied payload.
//
// Resolving an already-resolved conflict with the same outcome is a no-op.
func (e *Engine) Resolve(ctx context.Context, conflictID uint64, r models.Resolution, mergedData json.RawMessage) error {
	if !r.Valid() {
		return fmt.Errorf("invalid resolution %q", r)
	}

	conflict, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict.Resolved() {
		if conflict.Resolution == r {
			return nil
		}
		return store.ErrConflictResolved
	}

	winning := conflict.WinningVersion()

	switch r {
	case models.ResolutionLocalWins:
		if len(conflict.LocalData) == 0 {
			return fmt.Errorf("conflict %d has no local payload to keep", conflictID)
		}
		// Re-emitting through the regular put path both restores the row and
		// records the change event that carries the decision to other clients.
		if _, err := e.store.PutEntity(ctx, conflict.Entity, conflict.EntityID, conflict.LocalData, winning); err != nil {
			return fmt.Errorf("failed to re-emit local payload: %w", err)
		}

	case models.ResolutionRemoteWins:
		if conflict.RemoteOp == models.OpDelete {
			if err := e.store.ForceDelete(ctx, conflict.Entity, conflict.EntityID, conflict.RemoteVersion); err != nil {
				return err
			}
		} else {
			if err := e.store.ForcePut(ctx, conflict.Entity, conflict.EntityID, conflict.RemoteData, conflict.RemoteVersion); err != nil {
				return err
			}
		}

	case models.ResolutionMerged:
		if len(mergedData) == 0 {
			return fmt.Errorf("merged resolution requires a payload")
		}
		if _, err := e.store.PutEntity(ctx, conflict.Entity, conflict.EntityID, mergedData, winning); err != nil {
			return fmt.Errorf("failed to emit merged payload: %w", err)
		}
	}

	if _, err := e.store.ResolveConflict(ctx, conflictID, r, time.Now()); err != nil {
		return err
	}

	e.logger.Info("conflict resolved",
		"conflict_id", conflictID,
		"entity", conflict.Entity,
		"entity_id", conflict.EntityID,
		"resolution", r)

	// The winning payload should reach the server promptly.
	if r != models.ResolutionRemoteWins {
		e.RequestSync()
	}

	return nil
}
