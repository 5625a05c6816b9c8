package cli

import (
	"context"
	"fmt"
)

// RunSync runs one push/pull cycle against the server.
func (c *Cli) RunSync(ctx context.Context) error {
	fmt.Println("Starting synchronization with server...")

	result, err := c.engine.Sync(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Synchronization completed.")
	fmt.Printf("Pushed to server:   %d events\n", result.Pushed)
	fmt.Printf("Pulled from server: %d events\n", result.Pulled)
	if result.Conflicts > 0 {
		fmt.Printf("Conflicts filed:    %d (run 'syncline conflicts' to review)\n", result.Conflicts)
	}
	return nil
}
