package core

import "sync"

// Registry maps user ids to their live connections. It backs personal-room
// delivery (notifications, call signaling) and presence fan-out. Unlike chat
// rooms it is safe for concurrent use, because persistence goroutines resolve
// recipients after their database work completes.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[*Client]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]map[*Client]struct{})}
}

// Add registers a connection. Returns true if this is the user's first
// live connection.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.users[c.UserID] = conns
	}
	conns[c] = struct{}{}
	return len(conns) == 1
}

// Remove unregisters a connection. Returns true if the user has no
// connections left.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[c.UserID]
	if !ok {
		return true
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.users, c.UserID)
		return true
	}
	return false
}

// SendToUser delivers an event to every connection of the user.
// Returns false if the user has no live connections.
func (r *Registry) SendToUser(userID int64, event *Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.users[userID]
	if !ok || len(conns) == 0 {
		return false
	}
	for client := range conns {
		client.send(event)
	}
	return true
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userID]) > 0
}

// BroadcastExcept delivers an event to every connection except the given one.
func (r *Registry) BroadcastExcept(event *Event, except *Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conns := range r.users {
		for client := range conns {
			if client == except {
				continue
			}
			client.send(event)
		}
	}
}
