package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairwave/roomrelay/internal/config"
	"github.com/pairwave/roomrelay/internal/metrics"
	"github.com/pairwave/roomrelay/internal/origin"
	"github.com/pairwave/roomrelay/internal/ratelimit"
	"github.com/pairwave/roomrelay/internal/room"
)

// wsWriteWait bounds every WebSocket write so one stuck peer cannot hold a
// writer indefinitely.
const wsWriteWait = 1 * time.Second

// Server is the signaling relay's WebSocket surface.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	stats    *metrics.Metrics
	registry *room.Registry
	router   *Router
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, logger *slog.Logger, stats *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// Unset knobs fall back to the config defaults. A zero-value Config must
	// stay serviceable: the ping ticker requires a positive interval and a
	// zero-capacity rate limit would reject every message.
	if cfg.WSIdleTimeout <= 0 {
		cfg.WSIdleTimeout = config.DefaultWSIdleTimeout
	}
	if cfg.WSPingInterval <= 0 {
		cfg.WSPingInterval = config.DefaultWSPingInterval
	}
	if cfg.WSPingInterval >= cfg.WSIdleTimeout {
		cfg.WSPingInterval = cfg.WSIdleTimeout / 2
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = config.DefaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = config.DefaultMaxMessagesPerSecond
	}

	registry := room.NewRegistry()
	s := &Server{
		cfg:      cfg,
		log:      logger,
		stats:    stats,
		registry: registry,
		router:   NewRouter(registry, registry, logger, stats),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			header := r.Header.Get("Origin")
			if header == "" {
				// Non-browser clients (tests, CLIs) send no Origin.
				return true
			}
			normalized, host, ok := origin.Normalize(header)
			return ok && origin.Allowed(normalized, host, r.Host, cfg.AllowedOrigins)
		},
	}
	return s
}

// Router exposes the dispatch core for tests that drive it directly.
func (s *Server) Router() *Router {
	return s.router
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler provides minimal routing for tests and simple deployments. The
// production binary wires routes through httpserver using RegisterRoutes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &wsConn{conn: conn}
	c.open.Store(true)
	s.log.Debug("connection opened", "remote_addr", r.RemoteAddr)

	s.readLoop(c)
}

// readLoop processes one connection's inbound messages strictly in arrival
// order. Teardown runs exactly once on loop exit, however the loop ends.
func (s *Server) readLoop(c *wsConn) {
	defer func() {
		c.close()
		s.router.HandleDisconnect(c)
	}()

	idle := s.cfg.WSIdleTimeout
	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	stopPings := make(chan struct{})
	defer close(stopPings)
	go s.pingLoop(c, stopPings)

	rate := int64(s.cfg.MaxMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(ratelimit.RealClock{}, rate, rate)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// Limit after reading so bytes already in the TCP receive buffer are
		// consumed; closing with unread data can turn into an abortive close
		// that hides the close reason from the client.
		if !limiter.Allow(1) {
			s.stats.Inc(metrics.RateLimited)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if left := s.router.HandleMessage(c, data); left {
			c.closeWith(websocket.CloseNormalClosure, "left room")
			return
		}
	}
}

func (s *Server) pingLoop(c *wsConn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

var errConnClosed = errors.New("connection closed")

// wsConn adapts a gorilla connection to room.Conn. All writes go through
// writeMu; gorilla allows at most one concurrent writer.
type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	open      atomic.Bool
	closeOnce sync.Once
}

func (c *wsConn) Open() bool {
	return c.open.Load()
}

func (c *wsConn) Send(v any) error {
	if !c.open.Load() {
		return errConnClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

func (c *wsConn) writePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) closeWith(code int, reason string) {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	c.writeMu.Unlock()
	c.close()
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		_ = c.conn.Close()
	})
}
