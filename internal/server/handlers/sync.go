package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/opsdeck/syncline/internal/models"
	"github.com/opsdeck/syncline/internal/server/middleware"
	"github.com/opsdeck/syncline/internal/server/storage"
	"github.com/opsdeck/syncline/pkg/api"
)

// Notifier delivers real-time channel messages to connected clients.
// Delivery is best-effort; disconnected clients catch up on their next pull.
type Notifier interface {
	Broadcast(ctx context.Context, msg api.ChannelMessage, exceptClientID string)
	SendTo(ctx context.Context, clientID string, msg api.ChannelMessage)
}

// SyncHandler handles push and pull requests.
type SyncHandler struct {
	logger   *slog.Logger
	storage  storage.DataStorage
	notifier Notifier
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(logger *slog.Logger, store storage.DataStorage, notifier Notifier) *SyncHandler {
	return &SyncHandler{
		logger:   logger,
		storage:  store,
		notifier: notifier,
	}
}

// HandlePush processes POST /api/v1/sync/push.
//
// Events apply in batch order. Once an event for an entity is rejected as
// stale, the remaining events for that same entity are rejected too: they
// were minted on top of the losing state. Events for other entities in the
// batch keep applying.
func (h *SyncHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID, ok := middleware.ClientID(ctx)
	if !ok {
		h.logger.Error("client id not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode push request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	h.logger.Info("push request", "client_id", clientID, "events_count", len(req.Events))

	resp := api.PushResponse{}
	blocked := make(map[string]bool)

	for _, apiEvent := range req.Events {
		event := models.EventFromAPI(apiEvent)
		event.ClientID = clientID // identity comes from the token, not the body

		if err := event.Validate(); err != nil {
			h.logger.Warn("invalid event in push batch", "error", err, "event_id", apiEvent.ID)
			writeError(w, h.logger, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		key := string(event.Entity) + "/" + event.EntityID
		if blocked[key] {
			resp.Rejected++
			continue
		}

		result, err := h.storage.ApplyEvent(ctx, event)
		if err != nil {
			h.logger.Error("failed to apply event", "error", err, "event_id", event.ID)
			writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to apply event")
			return
		}

		switch result.Outcome {
		case storage.Accepted:
			resp.Accepted++
			resp.AcceptedIDs = append(resp.AcceptedIDs, event.ID)
			// Broadcast the stored form so the originator in channel
			// messages always matches the durable log.
			wire := event.ToAPI()
			h.notifier.Broadcast(ctx, api.ChannelMessage{
				Type:  api.MessageSyncEvent,
				Event: &wire,
			}, clientID)
		case storage.Duplicate:
			// Replay of an already durable event. Count it accepted so the
			// retrying client marks it synced, but do not re-broadcast.
			resp.Accepted++
			resp.AcceptedIDs = append(resp.AcceptedIDs, event.ID)
		case storage.Stale:
			resp.Rejected++
			blocked[key] = true
			conflict := &api.SyncConflict{
				EventID:       event.ID,
				Entity:        string(event.Entity),
				EntityID:      event.EntityID,
				LocalVersion:  event.Version,
				RemoteVersion: result.StoredVersion,
				LocalData:     event.Data,
				RemoteData:    result.StoredData,
			}
			if result.StoredDeleted {
				// The canonical row is a tombstone; remote-wins on the
				// client must delete, not restore marker data.
				conflict.RemoteOp = string(models.OpDelete)
			}
			h.notifier.SendTo(ctx, clientID, api.ChannelMessage{
				Type:     api.MessageConflict,
				Conflict: conflict,
			})
			h.logger.Info("push event rejected as stale",
				"client_id", clientID,
				"event_id", event.ID,
				"entity", event.Entity,
				"entity_id", event.EntityID,
				"version", event.Version,
				"stored_version", result.StoredVersion)
		}
	}

	if resp.Accepted > 0 {
		h.notifier.SendTo(ctx, clientID, api.ChannelMessage{
			Type: api.MessageSyncAck,
			Ack:  &api.SyncAck{EventIDs: resp.AcceptedIDs},
		})
	}

	writeJSON(w, h.logger, http.StatusOK, resp)

	h.logger.Info("push completed",
		"client_id", clientID,
		"accepted", resp.Accepted,
		"rejected", resp.Rejected)
}

// HandlePull processes POST /api/v1/sync/pull. It returns every durable
// event past the client's watermark except the client's own echoes, plus the
// new watermark to persist.
func (h *SyncHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID, ok := middleware.ClientID(ctx)
	if !ok {
		h.logger.Error("client id not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode pull request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.SinceSeq < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "bad_request", "since_version must not be negative")
		return
	}

	events, watermark, err := h.storage.EventsSince(ctx, req.SinceSeq, clientID)
	if err != nil {
		h.logger.Error("failed to load events", "error", err, "client_id", clientID)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to load events")
		return
	}

	resp := api.PullResponse{
		Events:     make([]api.SyncEvent, 0, len(events)),
		Conflicts:  []api.SyncConflict{},
		CurrentSeq: watermark,
	}
	for _, event := range events {
		resp.Events = append(resp.Events, event.ToAPI())
	}

	writeJSON(w, h.logger, http.StatusOK, resp)

	h.logger.Info("pull completed",
		"client_id", clientID,
		"since", req.SinceSeq,
		"events_count", len(resp.Events),
		"current_seq", watermark)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	writeJSON(w, logger, status, api.ErrorResponse{Error: code, Message: message})
}
