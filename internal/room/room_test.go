package room_test

import (
	"errors"
	"testing"

	"github.com/pairwave/roomrelay/internal/room"
)

type fakeConn struct {
	open bool
}

func (c *fakeConn) Open() bool       { return c.open }
func (c *fakeConn) Send(v any) error { return nil }

func TestNormalizeID(t *testing.T) {
	for _, raw := range []string{"Room1 ", "room1", " ROOM1"} {
		if got := room.NormalizeID(raw); got != "room1" {
			t.Fatalf("NormalizeID(%q) = %q, want %q", raw, got, "room1")
		}
	}
	if got := room.NormalizeID("   "); got != "" {
		t.Fatalf("NormalizeID(whitespace) = %q, want empty", got)
	}
}

func TestRegistry_JoinCapacity(t *testing.T) {
	reg := room.NewRegistry()
	a := &fakeConn{open: true}
	b := &fakeConn{open: true}
	c := &fakeConn{open: true}

	if err := reg.Join("room1", a); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := reg.Join("room1", b); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if err := reg.Join("room1", c); !errors.Is(err, room.ErrRoomFull) {
		t.Fatalf("third join err = %v, want ErrRoomFull", err)
	}

	members := reg.Members("room1")
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2 (failed join must not mutate)", len(members))
	}
}

func TestRegistry_JoinSameConnTwiceIsNoop(t *testing.T) {
	reg := room.NewRegistry()
	a := &fakeConn{open: true}

	if err := reg.Join("room1", a); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := reg.Join("room1", a); err != nil {
		t.Fatalf("repeat join: %v", err)
	}
	if got := len(reg.Members("room1")); got != 1 {
		t.Fatalf("members = %d, want 1", got)
	}
}

func TestRegistry_LeaveDeletesEmptyRoom(t *testing.T) {
	reg := room.NewRegistry()
	a := &fakeConn{open: true}
	b := &fakeConn{open: true}

	if err := reg.Join("room1", a); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := reg.Join("room1", b); err != nil {
		t.Fatalf("join b: %v", err)
	}

	reg.Leave("room1", a)
	if got := len(reg.Members("room1")); got != 1 {
		t.Fatalf("members after first leave = %d, want 1", got)
	}

	reg.Leave("room1", b)
	if reg.Members("room1") != nil {
		t.Fatalf("expected room to be deleted after last leave")
	}
	if got := reg.RoomCount(); got != 0 {
		t.Fatalf("RoomCount = %d, want 0", got)
	}

	// A later join with the same key starts a fresh room.
	c := &fakeConn{open: true}
	if err := reg.Join("room1", c); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := len(reg.Members("room1")); got != 1 {
		t.Fatalf("fresh room members = %d, want 1", got)
	}
}

func TestRegistry_LeaveIsIdempotent(t *testing.T) {
	reg := room.NewRegistry()
	a := &fakeConn{open: true}

	if err := reg.Join("room1", a); err != nil {
		t.Fatalf("join: %v", err)
	}
	reg.Leave("room1", a)
	reg.Leave("room1", a)
	reg.Leave("missing", a)
}

func TestRegistry_Associations(t *testing.T) {
	reg := room.NewRegistry()
	a := &fakeConn{open: true}

	if !reg.Associate(a, "room1", "user-a") {
		t.Fatalf("Associate returned false")
	}
	if reg.Associate(a, "room2", "user-x") {
		t.Fatalf("second Associate must not overwrite")
	}

	assoc, ok := reg.Lookup(a)
	if !ok || assoc.RoomID != "room1" || assoc.UserID != "user-a" {
		t.Fatalf("Lookup = %+v, %v", assoc, ok)
	}

	assoc, ok = reg.Disassociate(a)
	if !ok || assoc.UserID != "user-a" {
		t.Fatalf("Disassociate = %+v, %v", assoc, ok)
	}
	if _, ok := reg.Disassociate(a); ok {
		t.Fatalf("second Disassociate must report false")
	}
	if _, ok := reg.Lookup(a); ok {
		t.Fatalf("Lookup after Disassociate must report false")
	}
}
