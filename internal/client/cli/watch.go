package cli

import (
	"context"
	"fmt"
	"time"
)

const watchStatusInterval = 10 * time.Second

// RunWatch runs the engine until the context is cancelled, printing a status
// line whenever the pending counts change.
func (c *Cli) RunWatch(ctx context.Context) error {
	if err := c.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	defer c.engine.Stop()

	fmt.Printf("Watching as client %s. Press Ctrl+C to stop.\n", c.engine.ClientID())

	ticker := time.NewTicker(watchStatusInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopping...")
			return nil
		case <-ticker.C:
			status, err := c.engine.Status(ctx)
			if err != nil {
				continue
			}
			line := formatStatusLine(status)
			if line != last {
				fmt.Println(line)
				last = line
			}
		}
	}
}
