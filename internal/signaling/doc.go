// Package signaling implements the room-scoped WebSocket relay that carries
// session-negotiation messages between the two participants of a room.
//
// The relay forwards sdp/candidate payloads verbatim; it never inspects
// their contents.
package signaling
