package relay

import (
	"sync"

	"github.com/samber/lo"
)

// RoomIndex maps room names to the ids of their members. A room exists only
// while it has at least one member.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
	locks *roomLocks
}

// NewRoomIndex returns an empty RoomIndex.
func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		rooms: make(map[string]map[string]struct{}),
		locks: newRoomLocks(),
	}
}

// Lock serializes operations on the named rooms. Empty names are ignored and
// several rooms are always acquired in the same order. The returned function
// releases every lock taken.
func (x *RoomIndex) Lock(rooms ...string) (unlock func()) {
	return x.locks.lock(rooms...)
}

// AddMember inserts id into room, creating the room if needed. It reports
// whether the room was created.
func (x *RoomIndex) AddMember(room, id string) (created bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	members, ok := x.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		x.rooms[room] = members
	}
	members[id] = struct{}{}
	return !ok
}

// RemoveMember removes id from room and deletes the room once it is empty.
// It reports whether id was a member and whether the room was deleted.
func (x *RoomIndex) RemoveMember(room, id string) (removed, deleted bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	members, ok := x.rooms[room]
	if !ok {
		return false, false
	}
	if _, ok := members[id]; !ok {
		return false, false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(x.rooms, room)
		return true, true
	}
	return true, false
}

// MembersOf returns a snapshot of the member ids of room. Unknown rooms have
// no members.
func (x *RoomIndex) MembersOf(room string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return lo.Keys(x.rooms[room])
}

// Has reports whether room currently exists.
func (x *RoomIndex) Has(room string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, ok := x.rooms[room]
	return ok
}

// Len returns the number of non-empty rooms.
func (x *RoomIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.rooms)
}
