// Package engine drives the client's push/pull cycle. The periodic timer,
// the real-time channel, and explicit Sync calls are all producers feeding
// one single-consumer trigger queue; a compare-and-swap in-flight guard
// ensures at most one cycle runs at a time, so a batch is never pushed twice
// by overlapping cycles.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	clientapi "github.com/opsdeck/syncline/internal/client/api"
	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/models"
	"github.com/opsdeck/syncline/pkg/api"
)

// Channel is the real-time transport the engine supervises. It is optional:
// a nil channel degrades to pure interval-driven sync.
type Channel interface {
	Start(ctx context.Context)
	Stop()
}

// Config tunes the engine.
type Config struct {
	// Interval between periodic sync attempts.
	Interval time.Duration
	// BatchSize caps how many unsynced events one push carries.
	BatchSize int
}

// DefaultConfig syncs every 30 seconds, 50 events per push.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, BatchSize: 50}
}

// Result counts what one sync cycle did.
type Result struct {
	Pushed    int // events acknowledged by the server this cycle
	Pulled    int // remote events applied to the Local Store
	Conflicts int // conflicts newly filed
}

// Status is the externally visible engine state.
type Status struct {
	Online              bool      `json:"online"`
	Syncing             bool      `json:"syncing"`
	LastSyncAt          time.Time `json:"last_sync_at,omitempty"`
	PendingEvents       int       `json:"pending_events"`
	PendingConflicts    int       `json:"pending_conflicts"`
	ManualRetryRequired bool      `json:"manual_retry_required"`
}

// Engine owns the sync lifecycle for one client.
type Engine struct {
	store   store.Store
	client  clientapi.ClientAPI
	channel Channel
	cfg     Config
	logger  *slog.Logger

	syncing atomic.Bool

	mu          sync.Mutex
	running     bool
	online      bool
	manualRetry bool
	lastSync    time.Time
	clientID    string

	triggers chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an engine over the Local Store and sync transport. channel
// may be nil to disable the real-time path.
func New(s store.Store, client clientapi.ClientAPI, channel Channel, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Engine{
		store:    s,
		client:   client,
		channel:  channel,
		cfg:      cfg,
		logger:   logger,
		triggers: make(chan struct{}, 1),
	}
}

// SetChannel attaches the real-time channel. The engine is the channel's
// handler, so callers construct the engine first, the channel second, and
// wire them here before Start.
func (e *Engine) SetChannel(ch Channel) {
	e.channel = ch
}

// Start begins periodic sync and opens the real-time channel. An immediate
// first sync is requested so a freshly started client converges without
// waiting a full interval.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	if err := e.ensureClientID(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go e.consumeTriggers(runCtx)
	go e.tick(runCtx)

	if e.channel != nil {
		e.channel.Start(runCtx)
	}

	e.RequestSync()
	return nil
}

// Stop cancels the timer and trigger consumer and closes the channel. An
// in-flight pull applies per event, so stopping mid-cycle leaves no
// half-applied state: already-applied events stay applied, the rest arrive
// on the next pull.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	if e.channel != nil {
		e.channel.Stop()
	}
	e.wg.Wait()
}

// RequestSync enqueues a sync attempt. Multiple pending requests coalesce.
func (e *Engine) RequestSync() {
	select {
	case e.triggers <- struct{}{}:
	default:
	}
}

func (e *Engine) consumeTriggers(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.triggers:
			if _, err := e.Sync(ctx); err != nil {
				e.logger.Warn("sync cycle failed", "error", err)
			}
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RequestSync()
		}
	}
}

// Sync runs one push-then-pull cycle. A call that arrives while a cycle is
// already running returns a zero Result immediately.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}, nil
	}
	defer e.syncing.Store(false)

	if err := e.ensureClientID(ctx); err != nil {
		return Result{}, err
	}

	var result Result

	pushed, err := e.push(ctx)
	if err != nil {
		e.setOnline(false)
		return result, fmt.Errorf("push failed: %w", err)
	}
	result.Pushed = pushed

	pulled, conflicts, err := e.pull(ctx)
	if err != nil {
		e.setOnline(false)
		return result, fmt.Errorf("pull failed: %w", err)
	}
	result.Pulled = pulled
	result.Conflicts = conflicts

	e.mu.Lock()
	e.online = true
	e.manualRetry = false
	e.lastSync = time.Now()
	e.mu.Unlock()

	e.logger.Info("sync cycle completed",
		"pushed", result.Pushed,
		"pulled", result.Pulled,
		"conflicts", result.Conflicts)

	return result, nil
}

// push sends up to one batch of unsynced events, oldest first, and marks
// the server-accepted ones synced. Rejected events stay queued and are
// retried next cycle; a rejection is a version conflict surfaced by the
// server, not an error.
func (e *Engine) push(ctx context.Context) (int, error) {
	events, err := e.store.UnsyncedEvents(ctx, e.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load unsynced events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	req := api.PushRequest{Events: make([]api.SyncEvent, 0, len(events))}
	for _, event := range events {
		req.Events = append(req.Events, event.ToAPI())
	}

	resp, err := e.client.Push(ctx, req)
	if err != nil {
		return 0, err
	}

	acceptedIDs := resp.AcceptedIDs
	if acceptedIDs == nil {
		// Older servers return only counts; the accepted events are then a
		// prefix of the batch because processing stops at the first stale one.
		for i := 0; i < resp.Accepted && i < len(events); i++ {
			acceptedIDs = append(acceptedIDs, events[i].ID)
		}
	}

	if err := e.store.MarkSynced(ctx, acceptedIDs); err != nil {
		return 0, fmt.Errorf("failed to mark events synced: %w", err)
	}

	if resp.Rejected > 0 {
		e.logger.Warn("server rejected stale events; they remain queued",
			"accepted", resp.Accepted, "rejected", resp.Rejected)
	}

	return len(acceptedIDs), nil
}

// pull fetches everything past the watermark and applies it event by event.
func (e *Engine) pull(ctx context.Context) (pulled, conflicts int, err error) {
	watermark, err := e.store.Watermark(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read watermark: %w", err)
	}

	resp, err := e.client.Pull(ctx, api.PullRequest{ClientID: e.ClientID(), SinceSeq: watermark})
	if err != nil {
		return 0, 0, err
	}

	for _, wireEvent := range resp.Events {
		if ctx.Err() != nil {
			return pulled, conflicts, ctx.Err()
		}
		applied, conflicted, err := e.applyRemote(ctx, models.EventFromAPI(wireEvent))
		if err != nil {
			return pulled, conflicts, err
		}
		if applied {
			pulled++
		}
		if conflicted {
			conflicts++
		}
	}

	// Server-tracked conflicts, when the deployment records them.
	for _, wireConflict := range resp.Conflicts {
		if _, err := e.store.AppendConflict(ctx, models.ConflictFromAPI(wireConflict)); err != nil {
			return pulled, conflicts, fmt.Errorf("failed to file pulled conflict: %w", err)
		}
		conflicts++
	}

	if err := e.store.SetWatermark(ctx, resp.CurrentSeq); err != nil {
		return pulled, conflicts, fmt.Errorf("failed to persist watermark: %w", err)
	}

	return pulled, conflicts, nil
}

// applyRemote routes one remote event through the shared version-checked
// apply path; stale events are filed as conflicts instead of applied.
func (e *Engine) applyRemote(ctx context.Context, event *models.SyncEvent) (applied, conflicted bool, err error) {
	if event.ClientID == e.ClientID() {
		// Own echo; the server excludes these but the check is cheap.
		return false, false, nil
	}

	status, local, err := e.store.ApplyRemote(ctx, event)
	if err != nil {
		return false, false, fmt.Errorf("failed to apply event %s: %w", event.ID, err)
	}

	switch status {
	case store.ApplyApplied:
		return true, false, nil
	case store.ApplyDuplicate:
		return false, false, nil
	}

	conflict := &models.SyncConflict{
		EventID:       event.ID,
		Entity:        event.Entity,
		EntityID:      event.EntityID,
		RemoteVersion: event.Version,
		RemoteData:    event.Data,
		RemoteOp:      event.Operation,
	}
	if local != nil {
		conflict.LocalVersion = local.Version
		conflict.LocalData = local.Data
	}

	if _, err := e.store.AppendConflict(ctx, conflict); err != nil {
		return false, false, fmt.Errorf("failed to file conflict for event %s: %w", event.ID, err)
	}

	e.logger.Warn("version conflict filed",
		"entity", event.Entity,
		"entity_id", event.EntityID,
		"local_version", conflict.LocalVersion,
		"remote_version", conflict.RemoteVersion)

	return false, true, nil
}

// Status reports online/syncing state and pending work.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	status := Status{
		Online:              e.online,
		Syncing:             e.syncing.Load(),
		LastSyncAt:          e.lastSync,
		ManualRetryRequired: e.manualRetry,
	}
	e.mu.Unlock()

	pending, err := e.store.UnsyncedCount(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to count unsynced events: %w", err)
	}
	status.PendingEvents = pending

	conflicts, err := e.store.PendingConflictCount(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to count conflicts: %w", err)
	}
	status.PendingConflicts = conflicts

	return status, nil
}

// ClientID returns the opaque client identity loaded at Start.
func (e *Engine) ClientID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientID
}

// ensureClientID loads the identity lazily so one-shot Sync calls work
// without Start.
func (e *Engine) ensureClientID(ctx context.Context) error {
	e.mu.Lock()
	loaded := e.clientID != ""
	e.mu.Unlock()
	if loaded {
		return nil
	}

	clientID, err := e.store.ClientID(ctx)
	if err != nil {
		return fmt.Errorf("failed to load client id: %w", err)
	}
	e.mu.Lock()
	e.clientID = clientID
	e.mu.Unlock()
	return nil
}

func (e *Engine) setOnline(online bool) {
	e.mu.Lock()
	e.online = online
	e.mu.Unlock()
}
