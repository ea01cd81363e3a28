package core

import "sync"

// Registry tracks the live mapping from user id to the set of
// connections that user currently holds. Mutations happen on the hub
// run loop; the lock exists so HTTP handlers can take read snapshots
// without entering the loop.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[string]*Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]map[string]*Client)}
}

// Register adds the client to its identity's connection set.
// Returns true when this is the identity's first live connection.
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.Identity.ID]
	if !ok {
		set = make(map[string]*Client)
		r.conns[c.Identity.ID] = set
	}
	set[c.ID] = c
	return !ok
}

// Deregister removes the client from its identity's connection set.
// The first return is true when the identity became fully offline; the
// second reports whether the client was actually registered.
func (r *Registry) Deregister(c *Client) (last, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.conns[c.Identity.ID]
	if !exists {
		return false, false
	}
	if _, exists = set[c.ID]; !exists {
		return false, false
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(r.conns, c.Identity.ID)
		return true, true
	}
	return false, true
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// CountOnline returns the number of distinct users with live connections.
func (r *Registry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ClientsFor returns the live connections of a user.
func (r *Registry) ClientsFor(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}
