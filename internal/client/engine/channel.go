package engine

import (
	"context"
	"time"

	"github.com/opsdeck/syncline/internal/models"
	"github.com/opsdeck/syncline/pkg/api"
)

// The engine is the realtime channel's handler: connects trigger a sync,
// messages feed the same apply path as pulls, and exhausted reconnects
// flip the manual-retry flag.

// channelTimeout bounds Local Store work done on the channel goroutine.
const channelTimeout = 10 * time.Second

// OnConnect triggers an immediate sync to catch anything missed while the
// channel was down.
func (e *Engine) OnConnect() {
	e.setOnline(true)
	e.mu.Lock()
	e.manualRetry = false
	e.mu.Unlock()
	e.RequestSync()
}

// OnDisconnect marks the engine offline while reconnection runs.
func (e *Engine) OnDisconnect(err error) {
	e.setOnline(false)
}

// OnDown records that reconnection gave up; the status surface reports
// manual retry required until the next successful sync or Retry call.
func (e *Engine) OnDown() {
	e.mu.Lock()
	e.online = false
	e.manualRetry = true
	e.mu.Unlock()
	e.logger.Error("realtime channel down, manual retry required")
}

// OnMessage handles one channel message.
func (e *Engine) OnMessage(msg api.ChannelMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), channelTimeout)
	defer cancel()

	switch msg.Type {
	case api.MessageSyncEvent:
		if msg.Event == nil {
			return
		}
		if _, _, err := e.applyRemote(ctx, models.EventFromAPI(*msg.Event)); err != nil {
			e.logger.Warn("failed to apply channel event", "error", err)
		}

	case api.MessageConflict:
		if msg.Conflict == nil {
			return
		}
		if _, err := e.store.AppendConflict(ctx, models.ConflictFromAPI(*msg.Conflict)); err != nil {
			e.logger.Warn("failed to file channel conflict", "error", err)
		}

	case api.MessageSyncAck:
		if msg.Ack == nil {
			return
		}
		if err := e.store.MarkSynced(ctx, msg.Ack.EventIDs); err != nil {
			e.logger.Warn("failed to mark acked events synced", "error", err)
		}

	default:
		e.logger.Debug("ignoring unknown channel message", "type", msg.Type)
	}
}

// Retry clears the manual-retry state and reopens the channel after its
// reconnection budget was exhausted.
func (e *Engine) Retry(ctx context.Context) {
	e.mu.Lock()
	e.manualRetry = false
	running := e.running
	e.mu.Unlock()

	if running && e.channel != nil {
		e.channel.Start(ctx)
	}
	e.RequestSync()
}
