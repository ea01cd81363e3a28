package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinChannel subscribes the connection to a channel room.
	CommandJoinChannel CommandKind = iota
	// CommandLeaveChannel unsubscribes the connection from a channel room.
	CommandLeaveChannel
	// CommandSendMessage publishes a new message into a channel.
	CommandSendMessage
	// CommandEditMessage replaces the content of an existing message.
	CommandEditMessage
	// CommandDeleteMessage soft-deletes an existing message.
	CommandDeleteMessage
	// CommandTypingStart signals the user started composing in a channel.
	CommandTypingStart
	// CommandTypingStop signals the user stopped composing.
	CommandTypingStop
	// CommandMarkRead advances the user's last-read marker for a channel.
	CommandMarkRead
	// CommandPresenceRequest asks for a bulk online/offline snapshot.
	CommandPresenceRequest
)

// Command represents an action requested by a connection.
type Command struct {
	Kind       CommandKind
	ChannelID  int64
	MessageID  int64
	Content    string
	ParentID   *int64
	TempID     string
	Identities []int64
}
