package relay

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps rooms to the live sessions joined to them. It is the only
// source of truth for broadcast recipients.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*Session // room_id -> session_id -> session
	sessions map[string]map[string]struct{} // session_id -> room_ids
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]*Session),
		sessions: make(map[string]map[string]struct{}),
	}
}

// Add puts s into roomID. It reports false if s was already a member.
func (r *Registry) Add(s *Session, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[roomID] = members
	}
	if _, ok := members[s.ID]; ok {
		return false
	}
	members[s.ID] = s

	if r.sessions[s.ID] == nil {
		r.sessions[s.ID] = make(map[string]struct{})
	}
	r.sessions[s.ID][roomID] = struct{}{}
	return true
}

// Remove takes sessionID out of roomID. It reports false if it was not a member.
func (r *Registry) Remove(sessionID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(sessionID, roomID)
}

// RemoveAll drops sessionID from every room and returns those rooms, sorted.
func (r *Registry) RemoveAll(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := lo.Keys(r.sessions[sessionID])
	for _, roomID := range rooms {
		r.remove(sessionID, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Registry) remove(sessionID, roomID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[sessionID]; !ok {
		return false
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if joined := r.sessions[sessionID]; joined != nil {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	return true
}

// MembersOf returns the session ids in roomID, sorted.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.rooms[roomID])
	sort.Strings(ids)
	return ids
}

// Sessions is a point-in-time snapshot of roomID's members for fan-out.
func (r *Registry) Sessions(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.rooms[roomID])
}

// UserIDs returns the distinct user ids present in roomID, sorted.
func (r *Registry) UserIDs(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Uniq(lo.MapToSlice(r.rooms[roomID], func(_ string, s *Session) string {
		return s.Identity.ID
	}))
	sort.Strings(ids)
	return ids
}

// Len is the number of non-empty rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
