package cli

import (
	"context"
	"fmt"

	"github.com/opsdeck/syncline/internal/models"
)

// RunList prints every local entity of one kind.
func (c *Cli) RunList(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing entity kind. Usage: syncline list <deployment|project|artifact|queue_item>")
	}

	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	rows, err := c.store.ListEntities(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to list %ss: %w", kind, err)
	}

	if len(rows) == 0 {
		fmt.Printf("No %ss found.\n", kind)
		return nil
	}

	fmt.Printf("Found %d %s(s):\n\n", len(rows), kind)
	for i, row := range rows {
		fmt.Printf("%d. %s\n", i+1, row.ID)
		fmt.Printf("   Version: %d\n", row.Version)
		fmt.Printf("   Updated: %s\n", row.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("   Data:    %s\n", string(row.Data))
		fmt.Println()
	}
	return nil
}

func parseKind(raw string) (models.EntityKind, error) {
	kind := models.EntityKind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown entity kind: %s. Use: deployment, project, artifact, or queue_item", raw)
	}
	return kind, nil
}
