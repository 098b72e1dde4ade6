package broker

import (
	"log"
	"sync"
)

// Registry is the thread-safe map of connection ID to Client. It is the sole
// authority on which connections exist and whether they are live; no other
// component keeps an independent copy of that answer.
//
// Removal does not cascade into pools or the pair table — that cross-cutting
// cleanup belongs to the Controller.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds a connection under its transport-assigned ID. A duplicate ID
// should be impossible with correct transport semantics; it is logged as a
// logic error and the old entry is overwritten so the live link wins.
func (r *Registry) Register(id string, peer Peer) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; ok {
		log.Printf("broker: duplicate connection id=%s, overwriting", id)
	}

	c := &Client{ID: id, Peer: peer}
	r.clients[id] = c
	return c
}

// Get returns the client for the given ID, or nil if not registered.
func (r *Registry) Get(id string) *Client {
	r.mu.RLock()
	c := r.clients[id]
	r.mu.RUnlock()
	return c
}

// IsLive reports whether the connection is registered and its transport
// reports connected.
func (r *Registry) IsLive(id string) bool {
	r.mu.RLock()
	c := r.clients[id]
	r.mu.RUnlock()
	return c.Live()
}

// Remove deletes the connection and returns whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	return ok
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.clients)
	r.mu.RUnlock()
	return n
}
