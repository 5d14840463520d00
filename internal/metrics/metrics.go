package metrics

import "sync"

// Event counter names used across the relay.
const (
	RoomCreated      = "room_created"
	RoomDeleted      = "room_deleted"
	PeerJoined       = "peer_joined"
	PeerLeft         = "peer_left"
	JoinRejectedFull = "join_rejected_full"
	RelayForwarded   = "relay_forwarded"
	RelayPeerAbsent  = "relay_peer_absent"
	BadMessage       = "bad_message"
	RateLimited      = "rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay exposes these counters in Prometheus' text format (see
// PrometheusHandler) rather than pulling in a full metrics client.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
