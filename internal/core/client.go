package core

// Client is one live transport connection as seen by the core layer.
// A user may hold several clients at once (multi-device).
type Client struct {
	ID       string
	Identity Identity
	Events   chan *Event

	// channels the client has joined; owned by the hub run loop.
	channels map[int64]struct{}
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string, identity Identity) *Client {
	return &Client{
		ID:       id,
		Identity: identity,
		Events:   make(chan *Event, 32),
		channels: make(map[int64]struct{}),
	}
}

// InChannel reports whether the client has joined the channel room.
// Only safe to call from the hub run loop.
func (c *Client) InChannel(channelID int64) bool {
	_, ok := c.channels[channelID]
	return ok
}
