package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// StreamConfig tunes websocket connections.
type StreamConfig struct {
	MaxPendingMessages int
	WriteWait          time.Duration
	PongWait           time.Duration
}

// DefaultStreamConfig returns sane websocket limits.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxPendingMessages: 256,
		WriteWait:          10 * time.Second,
		PongWait:           60 * time.Second,
	}
}

// Message is the websocket frame carrying one event.
type Message struct {
	Type  events.EventType `json:"type"`
	Event events.Event     `json:"event"`
}

// Stream fans committed events out to websocket subscribers. Clients narrow
// the feed with ?type=a,b and ?asset=id query parameters.
type Stream struct {
	cfg      StreamConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[*connection]struct{}
	closed bool
}

// NewStream creates a stream. Subscribe it to events.AllEvents.
func NewStream(cfg StreamConfig, logger *zap.Logger) *Stream {
	return &Stream{
		cfg:    cfg,
		logger: logger.Named("stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*connection]struct{}),
	}
}

type connection struct {
	s      *Stream
	conn   *websocket.Conn
	send   chan []byte
	active atomic.Bool
	once   sync.Once
	kinds  map[events.EventType]struct{}
	asset  types.AssetID
}

func (c *connection) wants(event events.Event) bool {
	if c.asset != "" && event.Asset() != c.asset {
		return false
	}
	if len(c.kinds) == 0 {
		return true
	}
	_, ok := c.kinds[event.Type()]
	return ok
}

// deactivate stops delivery and lets writePump close the socket.
func (c *connection) deactivate() {
	c.once.Do(func() {
		c.active.Store(false)
		c.s.remove(c)
		close(c.send)
	})
}

// Handle implements events.Handler.
func (s *Stream) Handle(_ context.Context, event events.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.conns) == 0 {
		return nil
	}

	msg, err := json.Marshal(Message{Type: event.Type(), Event: event})
	if err != nil {
		return err
	}

	for c := range s.conns {
		if !c.active.Load() || !c.wants(event) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			s.logger.Debug("dropping event for slow subscriber",
				zap.String("event_id", event.ID()))
		}
	}
	return nil
}

// Connections returns the number of open subscribers.
func (s *Stream) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("failed to upgrade", zap.Error(err))
		return
	}

	c := &connection{
		s:     s,
		conn:  wsConn,
		send:  make(chan []byte, s.cfg.MaxPendingMessages),
		asset: types.AssetID(q.Get("asset")),
	}
	if raw := q.Get("type"); raw != "" {
		c.kinds = make(map[events.EventType]struct{})
		for _, t := range strings.Split(raw, ",") {
			c.kinds[events.EventType(strings.TrimSpace(t))] = struct{}{}
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = wsConn.Close()
		return
	}
	c.active.Store(true)
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (s *Stream) remove(c *connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Close disconnects every subscriber and refuses new ones.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.deactivate()
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (c *connection) readPump() {
	defer c.deactivate()

	c.conn.SetReadLimit(512)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.s.cfg.PongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.s.cfg.PongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.s.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.s.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.deactivate()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.s.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.s.logger.Debug("closing the connection", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.s.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
