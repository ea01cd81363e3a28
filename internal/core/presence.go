package core

// Presence derives online/offline state from registry cardinality.
// It has no state of its own: a user is online iff the registry holds
// at least one connection for them.
type Presence struct {
	registry *Registry
}

// NewPresence constructs a tracker over the given registry.
func NewPresence(registry *Registry) *Presence {
	return &Presence{registry: registry}
}

// ClientConnected records the connection and, on the user's 0->1
// transition, returns the presence event to broadcast. Returns nil for
// additional devices of an already-online user.
func (p *Presence) ClientConnected(c *Client) *Event {
	if first := p.registry.Register(c); !first {
		return nil
	}
	return &Event{Kind: EventPresenceUpdate, Identity: c.Identity.ID, Online: true}
}

// ClientDisconnected removes the connection and, on the 1->0
// transition, returns the offline event to broadcast. The second
// return is false when the client was not registered, which indicates
// a bookkeeping inconsistency the caller must handle.
func (p *Presence) ClientDisconnected(c *Client) (*Event, bool) {
	last, ok := p.registry.Deregister(c)
	if !ok {
		return nil, false
	}
	if !last {
		return nil, true
	}
	return &Event{Kind: EventPresenceUpdate, Identity: c.Identity.ID, Online: false}, true
}

// Snapshot returns the online flag for each requested user id.
// Pure read: no broadcast is triggered.
func (p *Presence) Snapshot(userIDs []int64) map[int64]bool {
	out := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = p.registry.IsOnline(id)
	}
	return out
}
