package cli

import (
	"context"
	"fmt"

	"github.com/opsdeck/syncline/internal/client/store"
)

// RunPrune applies the configured retention policy to the Local Store.
func (c *Cli) RunPrune(ctx context.Context) error {
	stats, err := c.store.Prune(ctx, store.PrunePolicy{
		EventRetention:    c.cfg.EventRetention,
		ConflictRetention: c.cfg.ConflictRetention,
		EntityHistoryCap:  c.cfg.EntityHistoryCap,
	})
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	fmt.Println("Prune completed.")
	fmt.Printf("Synced events removed:      %d\n", stats.Events)
	fmt.Printf("Resolved conflicts removed: %d\n", stats.Conflicts)
	fmt.Printf("Entity rows evicted:        %d\n", stats.Entities)
	return nil
}
