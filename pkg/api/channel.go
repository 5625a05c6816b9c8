package api

// Channel message types sent server -> client on the real-time channel.
const (
	MessageSyncEvent = "SYNC_EVENT"
	MessageConflict  = "CONFLICT"
	MessageSyncAck   = "SYNC_ACK"
)

// ChannelMessage is the envelope for all real-time channel traffic.
// Exactly one of Event, Conflict, or Ack is set, according to Type.
type ChannelMessage struct {
	Type     string        `json:"type"`
	Event    *SyncEvent    `json:"event,omitempty"`
	Conflict *SyncConflict `json:"conflict,omitempty"`
	Ack      *SyncAck      `json:"ack,omitempty"`
}

// SyncAck tells the originating client that specific events were accepted,
// so it can mark them synced without waiting for the next pull.
type SyncAck struct {
	EventIDs []string `json:"event_ids"`
}
