package realtime

import (
	"sync"
)

// Registry tracks which live connections belong to which rooms. It is purely
// in-memory; connections re-join their rooms on reconnect. All methods are
// safe for concurrent use, including LeaveAll racing an in-flight broadcast:
// the broadcast simply misses connections removed before it reads the member
// set.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // room -> connection ids
	conns map[string]map[string]struct{} // connection id -> rooms
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to a room. Joining a room the connection is
// already in is a no-op. A connection belongs to at most one user room (its
// own identity), so joining a second one replaces the first.
func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if IsUserRoom(room) {
		for existing := range r.conns[connID] {
			if IsUserRoom(existing) && existing != room {
				r.leaveLocked(connID, existing)
			}
		}
	}

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connID] = struct{}{}

	if r.conns[connID] == nil {
		r.conns[connID] = make(map[string]struct{})
	}
	r.conns[connID][room] = struct{}{}
}

// Leave removes the connection from a room. Unknown pairs are no-ops.
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.conns[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.conns, connID)
		}
	}
}

// LeaveAll evicts the connection from every room. Called on disconnect and on
// push failure so stale connections never accumulate.
func (r *Registry) LeaveAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.conns[connID] {
		if members, ok := r.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.conns, connID)
}

// Members returns a snapshot of the connection ids in a room.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.rooms[room]))
	for connID := range r.rooms[room] {
		members = append(members, connID)
	}
	return members
}

// Rooms returns a snapshot of the rooms a connection belongs to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.conns[connID]))
	for room := range r.conns[connID] {
		rooms = append(rooms, room)
	}
	return rooms
}
