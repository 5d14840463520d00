package signaling

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pairwave/roomrelay/internal/metrics"
	"github.com/pairwave/roomrelay/internal/room"
)

// Error texts sent to clients. The exact strings are part of the protocol.
const (
	errRoomIDRequired = "Room ID required"
	errRoomFull       = "Room is full (max 2 participants)"
	errNotJoined      = "Join a room first"
	errPeerNotFound   = "Peer not found or disconnected"
	errAlreadyJoined  = "Already in a room"
	errUserIDTaken    = "User ID already taken in this room"
	errInvalidMessage = "Invalid message"
)

// Router dispatches inbound envelopes against the two registries and decides
// which connections receive which responses.
type Router struct {
	log   *slog.Logger
	stats *metrics.Metrics
	conns room.ConnectionStore
	rooms room.RoomStore

	// mu serializes every compound registry operation and broadcast
	// enumeration: a join and a concurrent leave on the same room must not
	// interleave into an inconsistent member count or a lost notification.
	mu sync.Mutex
}

func NewRouter(conns room.ConnectionStore, rooms room.RoomStore, log *slog.Logger, stats *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log:   log,
		stats: stats,
		conns: conns,
		rooms: rooms,
	}
}

// delivery is one outbound envelope bound for one connection. Handlers
// compute deliveries under the router mutex and send them after it is
// released, so a slow peer cannot stall unrelated rooms.
type delivery struct {
	to  room.Conn
	msg Message
}

func send(deliveries []delivery) {
	for _, d := range deliveries {
		// Best effort: a closed connection drops the message.
		_ = d.to.Send(d.msg)
	}
}

// HandleMessage dispatches one inbound message for conn, in arrival order.
// It reports true when the message ended the connection's signaling session
// (an explicit leave); the caller should close the transport and stop
// dispatching.
func (rt *Router) HandleMessage(conn room.Conn, data []byte) (left bool) {
	msg, err := ParseMessage(data)
	if err != nil {
		rt.stats.Inc(metrics.BadMessage)
		rt.log.Debug("bad signaling message", "err", err)
		_ = conn.Send(errorMessage(errInvalidMessage))
		return false
	}

	switch msg.Type {
	case MessageTypeJoin:
		send(rt.join(conn, msg))
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
		send(rt.relay(conn, msg))
	case MessageTypeLeave:
		// Always succeeds, even when not joined.
		rt.HandleDisconnect(conn)
		return true
	default:
		rt.stats.Inc(metrics.BadMessage)
		_ = conn.Send(errorMessage(errInvalidMessage))
	}
	return false
}

// HandleDisconnect tears down the connection's room membership and notifies
// the remaining member, exactly once. Safe to call repeatedly; only the
// first call has effects.
func (rt *Router) HandleDisconnect(conn room.Conn) {
	rt.mu.Lock()
	assoc, ok := rt.conns.Disassociate(conn)
	if !ok {
		rt.mu.Unlock()
		return
	}
	rt.rooms.Leave(assoc.RoomID, conn)
	remaining := rt.rooms.Members(assoc.RoomID)

	var deliveries []delivery
	for _, member := range remaining {
		deliveries = append(deliveries, delivery{
			to:  member,
			msg: Message{Type: MessageTypePeerLeft, UserID: assoc.UserID},
		})
	}
	rt.mu.Unlock()

	rt.stats.Inc(metrics.PeerLeft)
	if remaining == nil {
		rt.stats.Inc(metrics.RoomDeleted)
	}
	rt.log.Info("peer left room", "room", assoc.RoomID, "user", assoc.UserID, "remaining", len(remaining))

	send(deliveries)
}

func (rt *Router) join(conn room.Conn, msg Message) []delivery {
	roomID := room.NormalizeID(msg.RoomID)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, joined := rt.conns.Lookup(conn); joined {
		return []delivery{{to: conn, msg: errorMessage(errAlreadyJoined)}}
	}
	if roomID == "" {
		return []delivery{{to: conn, msg: errorMessage(errRoomIDRequired)}}
	}

	userID := msg.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	others := rt.rooms.Members(roomID)
	for _, member := range others {
		if assoc, ok := rt.conns.Lookup(member); ok && assoc.UserID == userID {
			return []delivery{{to: conn, msg: errorMessage(errUserIDTaken)}}
		}
	}

	if err := rt.rooms.Join(roomID, conn); err != nil {
		if errors.Is(err, room.ErrRoomFull) {
			rt.stats.Inc(metrics.JoinRejectedFull)
			return []delivery{{to: conn, msg: errorMessage(errRoomFull)}}
		}
		return []delivery{{to: conn, msg: errorMessage(errInvalidMessage)}}
	}
	rt.conns.Associate(conn, roomID, userID)

	peers := make([]string, 0, len(others))
	deliveries := []delivery{{to: conn, msg: Message{
		Type:   MessageTypeJoined,
		RoomID: roomID,
		UserID: userID,
	}}}
	for _, member := range others {
		assoc, ok := rt.conns.Lookup(member)
		if !ok {
			continue
		}
		peers = append(peers, assoc.UserID)
		deliveries = append(deliveries, delivery{
			to:  member,
			msg: Message{Type: MessageTypePeerJoined, RoomID: roomID, UserID: userID},
		})
	}
	deliveries[0].msg.Peers = &peers

	if len(others) == 0 {
		rt.stats.Inc(metrics.RoomCreated)
	}
	rt.stats.Inc(metrics.PeerJoined)
	rt.log.Info("peer joined room", "room", roomID, "user", userID, "peers", len(peers))

	return deliveries
}

// relay forwards an offer/answer/ice-candidate payload unmodified to the
// room member named by msg.To, tagged with the sender's id.
func (rt *Router) relay(conn room.Conn, msg Message) []delivery {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	assoc, joined := rt.conns.Lookup(conn)
	if !joined {
		return []delivery{{to: conn, msg: errorMessage(errNotJoined)}}
	}

	members := rt.rooms.Members(assoc.RoomID)
	if members == nil {
		// Room vanished between teardowns; nothing to answer.
		return nil
	}

	var target room.Conn
	for _, member := range members {
		if member == conn {
			continue
		}
		memberAssoc, ok := rt.conns.Lookup(member)
		if ok && memberAssoc.UserID == msg.To && member.Open() {
			target = member
			break
		}
	}
	if target == nil {
		rt.stats.Inc(metrics.RelayPeerAbsent)
		return []delivery{{to: conn, msg: errorMessage(errPeerNotFound)}}
	}

	rt.stats.Inc(metrics.RelayForwarded)
	rt.log.Debug("relaying message", "type", msg.Type, "room", assoc.RoomID, "from", assoc.UserID, "to", msg.To)

	return []delivery{{to: target, msg: Message{
		Type:      msg.Type,
		From:      assoc.UserID,
		To:        msg.To,
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	}}}
}
