package sse

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/arcaderooms/internal/api/apierr"
	"github.com/mcoot/arcaderooms/internal/model"
)

const (
	// Time allowed to write a message to the watcher
	writeWait = 10 * time.Second

	// Time between keepalive comments
	pingPeriod = 30 * time.Second

	// Buffer size for outgoing messages
	sendBufferSize = 64
)

// Client represents a connected SSE watcher
type Client struct {
	remote      string
	send        chan []byte
	connectedAt time.Time
}

// NewClient creates a new SSE client
func NewClient(remote string) *Client {
	return &Client{
		remote:      remote,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
	}
}

type connected struct {
	Status   string `json:"status"`
	RoomCode string `json:"roomCode"`
}

// Handler serves GET /rooms/{code}/events
func Handler(manager *HubManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := model.RoomCode(mux.Vars(r)["code"])
		if err := code.Validate(); err != nil {
			apierr.WriteError(w, err)
			return
		}
		ServeSSE(w, r, manager, code)
	}
}

// ServeSSE streams room events to the client until it disconnects or the
// room's hub is shut down.
func ServeSSE(w http.ResponseWriter, r *http.Request, manager *HubManager, code model.RoomCode) {
	rc := http.NewResponseController(w)

	// The server's write timeout would otherwise cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := NewClient(r.RemoteAddr)
	var hub *Hub
	for {
		hub = manager.GetOrCreateHub(code)
		if hub.Register(client) {
			break
		}
	}
	defer hub.Unregister(client)

	write := func(b []byte) bool {
		_ = rc.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := w.Write(b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	hello, _ := json.Marshal(connected{Status: "connected", RoomCode: string(code)})
	if !write(formatSSEMessage("connected", string(hello))) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			if !write(message) {
				return
			}

		case <-ticker.C:
			if !write([]byte(": keepalive\n\n")) {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}
