package model

import (
	"encoding/json"
	"time"
)

// EventType names a push-channel message
type EventType string

const (
	// Client to server
	EventJoinRoom    EventType = "join-room"
	EventPlayerInput EventType = "player-input"
	EventPing        EventType = "ping"

	// Server to client
	EventRoomStatus     EventType = "room-status"
	EventPlayerJoined   EventType = "player-joined"
	EventPlayerLeft     EventType = "player-left"
	EventPlayerMovement EventType = "player-movement"
	EventRoomUpdated    EventType = "room-updated"
	EventPong           EventType = "pong"
)

// Envelope is the wire frame of every push-channel message
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound push-channel message before encoding
type Event struct {
	Type EventType
	Data any
}

// JoinRoomPayload is sent by a client to enter a room's push channel
type JoinRoomPayload struct {
	RoomCode RoomCode `json:"roomCode"`
	Address  string   `json:"address"`
	IsHost   bool     `json:"isHost"`
}

// PlayerInputPayload carries a client's input for immediate fan-out
type PlayerInputPayload struct {
	RoomCode RoomCode        `json:"roomCode"`
	Address  string          `json:"address"`
	Input    json.RawMessage `json:"input"`
}

// RoomStatusPayload tells a newly joined session how many are connected
type RoomStatusPayload struct {
	RoomCode RoomCode `json:"roomCode"`
	Count    int      `json:"count"`
}

// PlayerJoinedPayload announces a new session to existing peers
type PlayerJoinedPayload struct {
	Address string `json:"address"`
	IsHost  bool   `json:"isHost"`
	Count   int    `json:"count"`
}

// PlayerLeftPayload announces a disconnected session to remaining peers
type PlayerLeftPayload struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// PlayerMovementPayload is the fan-out form of a player-input message
type PlayerMovementPayload struct {
	Address   string          `json:"address"`
	Input     json.RawMessage `json:"input"`
	Timestamp int64           `json:"timestamp"` // server time, unix millis
}

// LifecycleEvent is published to the event bus when rooms or matches change
type LifecycleEvent struct {
	Type      string    `json:"type"`
	RoomCode  RoomCode  `json:"room_code,omitempty"`
	Address   string    `json:"address,omitempty"`
	Status    string    `json:"status,omitempty"`
	MatchID   MatchID   `json:"match_id,omitempty"`
	Score     int64     `json:"score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Lifecycle event types
const (
	LifecycleRoomCreated   = "room.created"
	LifecycleRoomJoined    = "room.joined"
	LifecycleRoomStarted   = "room.started"
	LifecycleRoomFinished  = "room.finished"
	LifecycleMatchRecorded = "match.recorded"
)
