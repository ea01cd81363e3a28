package core

import "encoding/json"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageNew notifies a channel room about a persisted message.
	EventMessageNew EventKind = iota
	// EventMessageUpdated notifies a channel room about an edited message.
	EventMessageUpdated
	// EventMessageDeleted notifies a channel room about a deleted message.
	EventMessageDeleted
	// EventTypingUpdate carries the current active-typer list for a channel.
	EventTypingUpdate
	// EventPresenceUpdate announces an online/offline transition.
	EventPresenceUpdate
	// EventPresenceSnapshot answers a bulk presence request.
	EventPresenceSnapshot
	// EventNotification delivers an out-of-band payload to a user's connections.
	EventNotification
	// EventError reports a domain error to the acting connection only.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// The json tags exist so events can cross the instance broker unchanged.
type Event struct {
	Kind      EventKind       `json:"kind"`
	ChannelID int64           `json:"channel_id,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	TempID    string          `json:"temp_id,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	Typers    []int64         `json:"typers,omitempty"`
	Identity  int64           `json:"identity,omitempty"`
	Online    bool            `json:"online,omitempty"`
	Snapshot  map[int64]bool  `json:"snapshot,omitempty"`
	Notify    string          `json:"notify,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *CoreError      `json:"error,omitempty"`
}

// RemoteScope selects which connections a relayed event reaches.
type RemoteScope string

const (
	// ScopeChannel delivers to the target channel room.
	ScopeChannel RemoteScope = "channel"
	// ScopeGlobal delivers to every connected client.
	ScopeGlobal RemoteScope = "global"
	// ScopeIdentity delivers to all connections of the target user.
	ScopeIdentity RemoteScope = "identity"
)

// RemoteEvent is the envelope exchanged between instances through a Broker.
type RemoteEvent struct {
	Origin string      `json:"origin"`
	Scope  RemoteScope `json:"scope"`
	Target int64       `json:"target,omitempty"`
	Event  *Event      `json:"event"`
}

// Broker relays events to sibling instances. Implementations live outside
// the core; a nil broker means single-instance operation.
type Broker interface {
	Publish(ev RemoteEvent) error
}
