package session

import (
	"sync"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

// Registry tracks the host's active connections, one entry per remote
// identifier. An entry exists iff the connection completed its open
// handshake and has not yet closed.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]transport.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]transport.Conn)}
}

// Register stores conn under id and returns the connection it displaced,
// if any. The caller closes the displaced connection.
func (r *Registry) Register(id string, conn transport.Conn) transport.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced := r.conns[id]
	if displaced == conn {
		displaced = nil
	}
	r.conns[id] = conn
	return displaced
}

// Remove deletes the entry for id only when it still holds conn, so a
// displaced connection's late close cannot evict its replacement. Reports
// whether an entry was removed.
func (r *Registry) Remove(id string, conn transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[id] != conn {
		return false
	}
	delete(r.conns, id)
	return true
}

// Get returns the connection registered for id.
func (r *Registry) Get(id string) (transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Snapshot returns a copy of the current registry contents.
func (r *Registry) Snapshot() map[string]transport.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]transport.Conn, len(r.conns))
	for id, conn := range r.conns {
		out[id] = conn
	}
	return out
}

// IDs lists the registered remote identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Clear empties the registry and returns the connections it held so the
// caller can close them.
func (r *Registry) Clear() []transport.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]transport.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	r.conns = make(map[string]transport.Conn)
	return out
}
