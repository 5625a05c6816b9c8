package api

import "encoding/json"

// SyncEvent is the wire form of one recorded mutation. The client-local
// synced flag is bookkeeping and is never transmitted.
type SyncEvent struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ClientID  string          `json:"client_id"`
	Version   int64           `json:"version"`
}

// SyncConflict describes a detected collision between a local row and a
// remote event whose versions do not strictly order.
type SyncConflict struct {
	ID            uint64          `json:"id,omitempty"`
	EventID       string          `json:"event_id"`
	Entity        string          `json:"entity"`
	EntityID      string          `json:"entity_id"`
	LocalVersion  int64           `json:"local_version"`
	RemoteVersion int64           `json:"remote_version"`
	LocalData     json.RawMessage `json:"local_data,omitempty"`
	RemoteData    json.RawMessage `json:"remote_data,omitempty"`
	RemoteOp      string          `json:"remote_operation,omitempty"`
	Resolution    string          `json:"resolution"`
	CreatedAt     int64           `json:"created_at"`
	ResolvedAt    int64           `json:"resolved_at,omitempty"`
}

// PushRequest carries a batch of unsynced events, oldest first.
type PushRequest struct {
	Events []SyncEvent `json:"events"`
}

// PushResponse reports per-batch acceptance. AcceptedIDs names the exact
// events applied; the counts alone are ambiguous when a stale event for one
// entity stops that entity's remainder while other entities continue.
type PushResponse struct {
	Accepted    int      `json:"accepted"`
	Rejected    int      `json:"rejected"`
	AcceptedIDs []string `json:"accepted_ids,omitempty"`
}

// PullRequest asks for everything past the client's server-sequence
// watermark, excluding the client's own echoed events.
type PullRequest struct {
	ClientID string `json:"client_id"`
	SinceSeq int64  `json:"since_version"`
}

// PullResponse returns events newer than the watermark plus the watermark
// the client should persist for its next pull. Conflicts is populated only
// by deployments that track conflict state server-side.
type PullResponse struct {
	Events     []SyncEvent    `json:"events"`
	Conflicts  []SyncConflict `json:"conflicts"`
	CurrentSeq int64          `json:"current_seq"`
}

// ErrorResponse is the JSON body returned for transport-level failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
