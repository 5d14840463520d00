// Package room holds the signaling relay's two in-memory registries: the
// connection registry (connection -> room/participant identity) and the room
// registry (room key -> member connections, capped at two).
//
// Both registries share a single mutex domain; see Registry.
package room
