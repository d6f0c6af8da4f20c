// Package presence keeps track of who is connected to a room and what they are
// doing. It is the single source of truth for nicknames and typing state.
package presence

import (
	"sync"

	"github.com/samber/lo"
)

// RoomID names a broadcast group.
type RoomID string

// MainRoom is the one room every connection belongs to.
const MainRoom RoomID = "main"

// ConnectionID identifies one live transport session.
type ConnectionID string

// Snapshot is a consistent view of a room taken under a single lock.
type Snapshot struct {
	Count     int
	Nicknames []string // join order
	Typing    []string // registered and typing, join order
}

type member struct {
	nickname string
	typing   bool
}

type roomState struct {
	order   []ConnectionID
	members map[ConnectionID]*member
}

// Registry maps live connections to their display state, per room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]*roomState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[RoomID]*roomState)}
}

// Register inserts or overwrites the nickname for id. An overwrite keeps the
// connection's position in the join order and its typing flag.
func (r *Registry) Register(roomID RoomID, id ConnectionID, nickname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		rs = &roomState{members: make(map[ConnectionID]*member)}
		r.rooms[roomID] = rs
	}
	if m, exists := rs.members[id]; exists {
		m.nickname = nickname
		return
	}
	rs.members[id] = &member{nickname: nickname}
	rs.order = append(rs.order, id)
}

// Unregister removes id and returns the nickname it had. ok is false when the
// connection never registered, which callers treat as "nothing to announce".
func (r *Registry) Unregister(roomID RoomID, id ConnectionID) (nickname string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, exists := r.rooms[roomID]
	if !exists {
		return "", false
	}
	m, exists := rs.members[id]
	if !exists {
		return "", false
	}

	delete(rs.members, id)
	rs.order = lo.Without(rs.order, id)

	// Drop empty rooms so the map does not grow with churn
	if len(rs.members) == 0 {
		delete(r.rooms, roomID)
	}
	return m.nickname, true
}

// SetTyping flags id as typing or not. Unknown connections are ignored.
func (r *Registry) SetTyping(roomID RoomID, id ConnectionID, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m := r.lookup(roomID, id); m != nil {
		m.typing = typing
	}
}

// Nickname returns the nickname registered for id.
func (r *Registry) Nickname(roomID RoomID, id ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m := r.lookup(roomID, id); m != nil {
		return m.nickname, true
	}
	return "", false
}

// Members returns the registered connection ids of a room in join order.
func (r *Registry) Members(roomID RoomID) []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]ConnectionID(nil), rs.order...)
}

// Snapshot reads count, nicknames and typing nicknames in one critical section.
func (r *Registry) Snapshot(roomID RoomID) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{Nicknames: []string{}, Typing: []string{}}
	}

	return Snapshot{
		Count: len(rs.members),
		Nicknames: lo.Map(rs.order, func(id ConnectionID, _ int) string {
			return rs.members[id].nickname
		}),
		Typing: lo.FilterMap(rs.order, func(id ConnectionID, _ int) (string, bool) {
			m := rs.members[id]
			return m.nickname, m.typing
		}),
	}
}

func (r *Registry) lookup(roomID RoomID, id ConnectionID) *member {
	rs, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return rs.members[id]
}
