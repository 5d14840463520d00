package room

import (
	"errors"
	"strings"
	"sync"
)

// MaxMembers is the room capacity. The relay only ever brokers a single
// peer-to-peer connection, so a room holds at most two participants.
const MaxMembers = 2

// ErrRoomFull is returned by Join when the room already has MaxMembers
// members. The room is left untouched.
var ErrRoomFull = errors.New("room is full")

// Conn is the relay's non-owning handle to one open bidirectional message
// channel. The registries key on it for the connection's lifetime; they never
// close it.
type Conn interface {
	// Open reports whether the underlying transport can still accept
	// outbound messages.
	Open() bool

	// Send enqueues one outbound message. Delivery is best-effort: a closed
	// or unready connection simply drops the message.
	Send(v any) error
}

// Association is a connection's room membership record.
type Association struct {
	RoomID string
	UserID string
}

// ConnectionStore is the single source of truth mapping a connection to its
// room and participant identity.
type ConnectionStore interface {
	// Associate records conn -> (roomID, userID). It reports false when the
	// connection is already associated; an existing mapping is never
	// overwritten.
	Associate(conn Conn, roomID, userID string) bool

	// Lookup returns the connection's association, if any.
	Lookup(conn Conn) (Association, bool)

	// Disassociate removes and returns the connection's association. It is
	// idempotent: a second call reports false and does nothing.
	Disassociate(conn Conn) (Association, bool)
}

// RoomStore is the derived index mapping a room key to its member
// connections. Callers must pass keys already canonicalized by NormalizeID.
type RoomStore interface {
	// Join adds conn to roomID, creating the room on first join. It returns
	// ErrRoomFull, mutating nothing, when the room already has MaxMembers
	// members.
	Join(roomID string, conn Conn) error

	// Members returns a snapshot of the room's current member set, nil when
	// the room does not exist.
	Members(roomID string) []Conn

	// Leave removes conn from roomID, deleting the room when its member set
	// empties. Idempotent.
	Leave(roomID string, conn Conn)
}

// NormalizeID canonicalizes a client-supplied room key so differently-cased
// or padded inputs resolve to the same room. It returns "" for keys that are
// empty after trimming.
func NormalizeID(roomID string) string {
	return strings.ToLower(strings.TrimSpace(roomID))
}

// Registry implements ConnectionStore and RoomStore over shared in-memory
// maps guarded by one mutex, so a join and a concurrent leave on the same
// room cannot interleave into an inconsistent member count.
type Registry struct {
	mu    sync.Mutex
	conns map[Conn]Association
	rooms map[string][]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[Conn]Association),
		rooms: make(map[string][]Conn),
	}
}

func (r *Registry) Associate(conn Conn, roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn]; ok {
		return false
	}
	r.conns[conn] = Association{RoomID: roomID, UserID: userID}
	return true
}

func (r *Registry) Lookup(conn Conn) (Association, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assoc, ok := r.conns[conn]
	return assoc, ok
}

func (r *Registry) Disassociate(conn Conn) (Association, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assoc, ok := r.conns[conn]
	if !ok {
		return Association{}, false
	}
	delete(r.conns, conn)
	return assoc, true
}

func (r *Registry) Join(roomID string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for _, m := range members {
		if m == conn {
			return nil
		}
	}
	if len(members) >= MaxMembers {
		return ErrRoomFull
	}
	r.rooms[roomID] = append(members, conn)
	return nil
}

func (r *Registry) Members(roomID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	if members == nil {
		return nil
	}
	out := make([]Conn, len(members))
	copy(out, members)
	return out
}

func (r *Registry) Leave(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for i, m := range members {
		if m == conn {
			members = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		// Empty rooms are deleted, not kept around: a later join with the
		// same key starts a fresh room.
		delete(r.rooms, roomID)
		return
	}
	r.rooms[roomID] = members
}

// RoomCount reports how many rooms currently exist.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
