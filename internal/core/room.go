package core

// Room groups the connections subscribed to one channel. Owned by the
// hub run loop; no locking needed.
type Room struct {
	ChannelID int64
	clients   map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(channelID int64) *Room {
	return &Room{
		ChannelID: channelID,
		clients:   make(map[*Client]struct{}),
	}
}

// Add inserts a client into the room. Returns true if newly added.
func (r *Room) Add(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// Remove deletes a client from the room. Returns true if removed.
func (r *Room) Remove(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Each calls fn for every client in the room.
func (r *Room) Each(fn func(*Client)) {
	for c := range r.clients {
		fn(c)
	}
}

// EachExcept calls fn for every client whose identity differs from
// excludeUserID.
func (r *Room) EachExcept(excludeUserID int64, fn func(*Client)) {
	for c := range r.clients {
		if c.Identity.ID == excludeUserID {
			continue
		}
		fn(c)
	}
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
