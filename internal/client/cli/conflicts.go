package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opsdeck/syncline/internal/models"
)

// RunConflicts prints every pending conflict with both sides of the data.
func (c *Cli) RunConflicts(ctx context.Context) error {
	conflicts, err := c.store.PendingConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	if len(conflicts) == 0 {
		fmt.Println("No pending conflicts.")
		return nil
	}

	fmt.Printf("Found %d pending conflict(s):\n\n", len(conflicts))
	for _, conflict := range conflicts {
		fmt.Printf("Conflict %d: %s/%s\n", conflict.ID, conflict.Entity, conflict.EntityID)
		fmt.Printf("  Detected:       %s\n", conflict.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Local version:  %d\n", conflict.LocalVersion)
		fmt.Printf("  Local data:     %s\n", string(conflict.LocalData))
		fmt.Printf("  Remote version: %d\n", conflict.RemoteVersion)
		if conflict.RemoteOp == models.OpDelete {
			fmt.Println("  Remote data:    (deleted)")
		} else {
			fmt.Printf("  Remote data:    %s\n", string(conflict.RemoteData))
		}
		fmt.Println()
	}

	fmt.Println("Resolve with: syncline resolve <id> <local-wins|remote-wins|merged> [json]")
	return nil
}

// RunResolve applies a resolution to one conflict.
func (c *Cli) RunResolve(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: syncline resolve <id> <local-wins|remote-wins|merged> [json]")
	}

	conflictID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid conflict id: %s", args[0])
	}

	resolution := models.Resolution(args[1])
	if !resolution.Valid() {
		return fmt.Errorf("unknown resolution: %s. Use: local-wins, remote-wins, or merged", args[1])
	}

	var merged json.RawMessage
	if resolution == models.ResolutionMerged {
		if len(args) < 3 {
			return fmt.Errorf("'merged' requires a JSON payload")
		}
		if !json.Valid([]byte(args[2])) {
			return fmt.Errorf("merged payload is not valid JSON")
		}
		merged = json.RawMessage(args[2])
	}

	if err := c.engine.Resolve(ctx, conflictID, resolution, merged); err != nil {
		return fmt.Errorf("failed to resolve conflict %d: %w", conflictID, err)
	}

	fmt.Printf("Conflict %d resolved as %s.\n", conflictID, resolution)
	if resolution != models.ResolutionRemoteWins {
		fmt.Println("The winning payload is recorded as a fresh change and will sync on the next cycle.")
	}
	return nil
}
