package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/arcaderooms/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// Session is one client's websocket connection to the push channel
type Session struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	connectedAt time.Time
}

// Ensure Session implements Peer
var _ Peer = (*Session)(nil)

func (s *Session) ID() string { return s.id }

// Send queues a message for the write pump. It never blocks and never
// panics after Close.
func (s *Session) Send(message []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- message:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Close stops the write pump, which then closes the connection
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Handler upgrades HTTP requests to push-channel sessions
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a websocket handler bound to hub
func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			// Game clients are served from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "relay-ws")),
	}
}

// ServeHTTP runs a session for the lifetime of the connection. Membership
// cleanup happens on this goroutine before it returns.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	session := &Session{
		id:          uuid.NewString(),
		conn:        conn,
		hub:         h.hub,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	session.logger = h.logger.With(slog.String("session_id", session.id))
	session.logger.Info("session connected", slog.String("remote_addr", r.RemoteAddr))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.writePump()
	}()

	session.readPump()

	h.hub.Leave(session)
	session.Close()
	wg.Wait()

	session.logger.Info("session disconnected",
		slog.Duration("connection_duration", time.Since(session.connectedAt)))
}

func (s *Session) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleMessage(message)

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			deadline := time.Now().Add(time.Second)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// handleMessage dispatches one client frame. Malformed frames are logged and
// dropped; nothing is ever reported back to the sender.
func (s *Session) handleMessage(raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Debug("dropping malformed frame", slog.String("error", err.Error()))
		return
	}

	switch env.Event {
	case model.EventJoinRoom:
		var p model.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomCode == "" || p.Address == "" {
			s.logger.Debug("dropping malformed join-room")
			return
		}
		s.hub.Join(s, p)

	case model.EventPlayerInput:
		var p model.PlayerInputPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomCode == "" {
			s.logger.Debug("dropping malformed player-input")
			return
		}
		s.hub.Relay(s, p)

	case model.EventPing:
		if msg, err := Encode(model.EventPong, map[string]int64{"timestamp": s.hub.clock.Now().UnixMilli()}); err == nil {
			s.Send(msg)
		}

	default:
		s.logger.Debug("dropping unknown event", slog.String("event", string(env.Event)))
	}
}
