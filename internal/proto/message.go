package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeChannelJoin     = "channel.join"
	InboundTypeChannelLeave    = "channel.leave"
	InboundTypeMessageSend     = "message.send"
	InboundTypeMessageEdit     = "message.edit"
	InboundTypeMessageDelete   = "message.delete"
	InboundTypeMessageRead     = "message.read"
	InboundTypeTypingStart     = "typing.start"
	InboundTypeTypingStop      = "typing.stop"
	InboundTypePresenceRequest = "presence.request"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMessageNew       = "message.new"
	EventMessageUpdated   = "message.updated"
	EventMessageDeleted   = "message.deleted"
	EventTypingUpdate     = "typing.update"
	EventPresenceUpdate   = "presence.update"
	EventPresenceSnapshot = "presence.snapshot"
	EventNotificationNew  = "notification.new"
)

// ChannelData targets a single channel (join, leave, typing).
type ChannelData struct {
	ChannelID int64 `json:"channel_id"`
}

// SendData is a new message from the client. TempID is an opaque client
// correlation id echoed back unchanged in the broadcast.
type SendData struct {
	ChannelID int64  `json:"channel_id"`
	Content   string `json:"content"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	TempID    string `json:"temp_id,omitempty"`
}

// EditData replaces the content of an existing message.
type EditData struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteData removes an existing message.
type DeleteData struct {
	MessageID int64 `json:"message_id"`
}

// ReadData advances the last-read marker for a channel.
type ReadData struct {
	MessageID int64 `json:"message_id"`
	ChannelID int64 `json:"channel_id"`
}

// PresenceRequestData asks for a bulk online snapshot.
type PresenceRequestData struct {
	IdentityIDs []int64 `json:"identity_ids"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessagePayload is the canonical message record on the wire.
type MessagePayload struct {
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channel_id"`
	AuthorID  int64  `json:"author_id"`
	Content   string `json:"content"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	TempID    string `json:"temp_id,omitempty"`
	TS        int64  `json:"ts"`
	EditedTS  *int64 `json:"edited_ts,omitempty"`
}

// MessageDeletedPayload announces a deletion to a channel room.
type MessageDeletedPayload struct {
	MessageID int64 `json:"message_id"`
	ChannelID int64 `json:"channel_id"`
}

// TypingPayload carries the active typers of a channel.
type TypingPayload struct {
	ChannelID int64   `json:"channel_id"`
	Users     []int64 `json:"users"`
}

// PresencePayload announces a single online/offline transition.
type PresencePayload struct {
	IdentityID int64 `json:"identity_id"`
	Online     bool  `json:"online"`
}

// PresenceSnapshotPayload answers presence.request.
type PresenceSnapshotPayload struct {
	Online map[int64]bool `json:"online"`
}

// NotificationPayload delivers an out-of-band suite event.
type NotificationPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
