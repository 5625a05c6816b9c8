package cli

import (
	"context"
	"fmt"

	"github.com/opsdeck/syncline/internal/client/engine"
)

// RunStatus prints the current sync state.
func (c *Cli) RunStatus(ctx context.Context) error {
	status, err := c.engine.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	watermark, err := c.store.Watermark(ctx)
	if err != nil {
		return fmt.Errorf("failed to read watermark: %w", err)
	}

	fmt.Println("=== Sync Status ===")
	fmt.Printf("Client ID:         %s\n", c.engine.ClientID())
	fmt.Printf("Online:            %v\n", status.Online)
	fmt.Printf("Pending events:    %d\n", status.PendingEvents)
	fmt.Printf("Pending conflicts: %d\n", status.PendingConflicts)
	fmt.Printf("Server watermark:  %d\n", watermark)
	if !status.LastSyncAt.IsZero() {
		fmt.Printf("Last sync:         %s\n", status.LastSyncAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last sync:         never")
	}
	if status.ManualRetryRequired {
		fmt.Println("Channel:           down, manual retry required")
	}
	return nil
}

func formatStatusLine(s engine.Status) string {
	state := "offline"
	if s.Online {
		state = "online"
	}
	return fmt.Sprintf("[%s] pending=%d conflicts=%d", state, s.PendingEvents, s.PendingConflicts)
}
