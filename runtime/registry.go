package runtime

import (
	"sync"

	"discussion-lab/contract"
	"discussion-lab/domain"
)

type set map[string]struct{}

// Registry tracks active connection sinks and room membership.
// Connections are managed in a single place even when joined to several
// rooms; room sets are deleted as soon as they empty out.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]contract.EventSink // connectionID -> sink
	roomMembers map[domain.SessionID]set      // room -> connectionIDs
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]contract.EventSink),
		roomMembers: make(map[domain.SessionID]set),
	}
}

// SinksForRoom resolves all active sinks for one room in two steps:
// member lookup, then connection resolution. Returns nil for an unknown
// or empty room.
func (r *Registry) SinksForRoom(sessionID domain.SessionID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[sessionID]
	if !ok {
		return nil
	}
	var active []contract.EventSink
	for connectionID := range members {
		if sink, exists := r.connections[connectionID]; exists {
			active = append(active, sink)
		}
	}
	return active
}

// SinkFor resolves a single connection, for targeted delivery.
func (r *Registry) SinkFor(connectionID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.connections[connectionID]
	return sink, ok
}

func (r *Registry) Subscribe(connectionID string, sessionID domain.SessionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[connectionID] = sink

	if _, ok := r.roomMembers[sessionID]; !ok {
		r.roomMembers[sessionID] = make(set)
	}
	r.roomMembers[sessionID][connectionID] = struct{}{}
}

// Unsubscribe removes a connection from one room. The connection entry
// itself survives while it is still a member of any other room.
func (r *Registry) Unsubscribe(connectionID string, sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromRoom(connectionID, sessionID)

	if !r.memberOfAnyRoom(connectionID) {
		delete(r.connections, connectionID)
	}
}

// UnsubscribeAll drops a connection entirely; used on transport disconnect.
func (r *Registry) UnsubscribeAll(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, connectionID)
	for sessionID := range r.roomMembers {
		r.removeFromRoom(connectionID, sessionID)
	}
}

// DropRoom detaches every member of a room at once; used when a
// discussion ends, so former members never see broadcasts of a later
// session reusing the same id.
func (r *Registry) DropRoom(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[sessionID]
	if !ok {
		return
	}
	delete(r.roomMembers, sessionID)
	for connectionID := range members {
		if !r.memberOfAnyRoom(connectionID) {
			delete(r.connections, connectionID)
		}
	}
}

// ConnectionCount is an introspection helper for monitoring.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Registry) removeFromRoom(connectionID string, sessionID domain.SessionID) {
	members, ok := r.roomMembers[sessionID]
	if !ok {
		return
	}
	delete(members, connectionID)
	// No empty sets left behind to avoid leaks over time
	if len(members) == 0 {
		delete(r.roomMembers, sessionID)
	}
}

func (r *Registry) memberOfAnyRoom(connectionID string) bool {
	for _, members := range r.roomMembers {
		if _, ok := members[connectionID]; ok {
			return true
		}
	}
	return false
}
