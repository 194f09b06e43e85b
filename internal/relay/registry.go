package relay

import (
	"fmt"
	"sync"
)

// Session is the registry's view of one live connection.
type Session struct {
	ID          string
	DisplayName string
	// Room is empty until the first successful join.
	Room string
}

// InRoom reports whether the session has joined a room.
func (s Session) InRoom() bool {
	return s.Room != ""
}

// Registry maps live connection ids to their identity and room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register creates an entry with no identity and no room. Registering an id
// that is already present is a no-op.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return
	}
	r.sessions[id] = Session{ID: id}
}

// Lookup returns the session for id.
func (r *Registry) Lookup(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// SetIdentity overwrites the display name and room of a registered connection.
func (r *Registry) SetIdentity(id, displayName, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("set identity for %s: %w", id, ErrUnknownConnection)
	}
	s.DisplayName = displayName
	s.Room = room
	r.sessions[id] = s
	return nil
}

// Unregister removes id and returns the entry it held.
func (r *Registry) Unregister(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
