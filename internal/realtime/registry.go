package realtime

import "sync"

// Registry maps room keys to the set of currently connected sessions. It is
// the only shared mutable state in the fan-out core; all membership access
// goes through Join/Leave/DropSession/MembersOf.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]map[*Session]struct{}
	joined map[*Session]map[string]struct{}
	byID   map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Session]struct{}),
		joined: make(map[*Session]map[string]struct{}),
		byID:   make(map[string]*Session),
	}
}

// Register makes a connected session addressable by its handle id.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.id] = s
}

// Session looks up a registered session by handle id.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Join adds the session to a room. Rooms are created implicitly on first
// join; joining a room twice is a no-op.
func (r *Registry) Join(s *Session, room string) {
	if room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}
	rooms, ok := r.joined[s]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[s] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes the session from a room. Leaving a room the session is not
// in is a no-op. Empty rooms are evicted immediately.
func (r *Registry) Leave(s *Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(s, room)
}

func (r *Registry) leaveLocked(s *Session, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if rooms, ok := r.joined[s]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, s)
		}
	}
}

// DropSession removes the session from every room it joined, unregisters
// it and closes its outbound queue. Safe to call more than once.
func (r *Registry) DropSession(s *Session) {
	r.mu.Lock()
	for room := range r.joined[s] {
		r.leaveLocked(s, room)
	}
	delete(r.joined, s)
	delete(r.byID, s.id)
	r.mu.Unlock()
	s.close()
}

// MembersOf returns a snapshot of the room's current members. Delivery to
// the snapshot happens outside the registry lock.
func (r *Registry) MembersOf(room string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	snapshot := make([]*Session, 0, len(members))
	for s := range members {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// RoomCount reports the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// SessionCount reports the number of registered sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
