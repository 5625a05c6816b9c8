package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdeck/syncline/internal/client/repo"
	"github.com/opsdeck/syncline/internal/models"
)

// RunPut creates or updates one entity from a JSON payload. A payload
// without an id creates a fresh entity; a payload with an id updates it.
func (c *Cli) RunPut(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: syncline put <kind> <json>")
	}

	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	entity, err := decodeEntity(kind, []byte(args[1]))
	if err != nil {
		return fmt.Errorf("invalid %s payload: %w", kind, err)
	}

	event, err := c.repo.Save(ctx, entity)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}

	fmt.Printf("Saved %s %s (version %d, %s)\n", kind, event.EntityID, event.Version, event.Operation)
	fmt.Println("The change is recorded locally and will sync on the next cycle.")
	return nil
}

// RunDelete removes one entity.
func (c *Cli) RunDelete(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: syncline delete <kind> <id>")
	}

	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	event, err := c.repo.Delete(ctx, kind, args[1])
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, args[1], err)
	}

	fmt.Printf("Deleted %s %s (version %d)\n", kind, event.EntityID, event.Version)
	return nil
}

func decodeEntity(kind models.EntityKind, data []byte) (models.Entity, error) {
	switch kind {
	case models.KindDeployment:
		var e models.Deployment
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = repo.NewID()
		}
		return &e, nil
	case models.KindProject:
		var e models.Project
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = repo.NewID()
		}
		return &e, nil
	case models.KindArtifact:
		var e models.Artifact
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = repo.NewID()
		}
		return &e, nil
	case models.KindQueueItem:
		var e models.QueueItem
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = repo.NewID()
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}
}
