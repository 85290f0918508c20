package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/mcoot/arcaderooms/internal/dependencies/clock"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/syncutil"
)

// Peer is one push-channel session as seen by the hub
type Peer interface {
	// ID uniquely identifies the session
	ID() string

	// Send queues an encoded message without blocking. It returns false when
	// the message was dropped.
	Send(message []byte) bool

	// Close ends the session
	Close()
}

type member struct {
	peer    Peer
	address string
	isHost  bool
}

// roomMembers is keyed by peer id
type roomMembers map[string]member

// Hub tracks which sessions are in which room and fans messages out to them.
// State is sharded by room code; no lock spans more than one shard.
type Hub struct {
	rooms    *syncutil.ShardedMap[roomMembers]
	sessions *syncutil.ShardedMap[model.RoomCode] // peer id -> joined room
	clock    clock.Clock
	logger   *slog.Logger
}

// NewHub creates an empty hub
func NewHub(clock clock.Clock, shards int, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:    syncutil.NewShardedMap[roomMembers](shards),
		sessions: syncutil.NewShardedMap[model.RoomCode](shards),
		clock:    clock,
		logger:   logger.With(slog.String("component", "relay-hub")),
	}
}

// Encode renders an event as a wire envelope
func Encode(eventType model.EventType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.Envelope{Event: eventType, Data: raw})
}

func (h *Hub) encode(eventType model.EventType, data any) []byte {
	msg, err := Encode(eventType, data)
	if err != nil {
		h.logger.Error("failed to encode event",
			slog.String("event", string(eventType)),
			slog.String("error", err.Error()))
		return nil
	}
	return msg
}

// Join adds peer to a room, moving it out of any room it was in before. The
// joining peer gets room-status and every existing member gets player-joined.
// It returns the room's membership count.
func (h *Hub) Join(peer Peer, p model.JoinRoomPayload) int {
	if prev, ok := h.sessions.Get(peer.ID()); ok && prev.Key() != p.RoomCode.Key() {
		h.Leave(peer)
	}

	var count int
	h.rooms.Update(p.RoomCode.Key(), func(members roomMembers, ok bool) (roomMembers, bool) {
		if !ok {
			members = make(roomMembers)
		}
		_, rejoin := members[peer.ID()]
		members[peer.ID()] = member{peer: peer, address: p.Address, isHost: p.IsHost}
		count = len(members)

		if !rejoin {
			msg := h.encode(model.EventPlayerJoined, model.PlayerJoinedPayload{
				Address: p.Address,
				IsHost:  p.IsHost,
				Count:   count,
			})
			h.fanOut(members, peer.ID(), msg)
		}
		return members, true
	})
	h.sessions.Update(peer.ID(), func(model.RoomCode, bool) (model.RoomCode, bool) {
		return p.RoomCode, true
	})

	peer.Send(h.encode(model.EventRoomStatus, model.RoomStatusPayload{RoomCode: p.RoomCode, Count: count}))

	h.logger.Debug("session joined room",
		slog.String("session_id", peer.ID()),
		slog.String("room_code", string(p.RoomCode)),
		slog.String("address", p.Address),
		slog.Int("count", count))
	return count
}

// Leave removes peer from its room and tells the remaining members. A room
// with no members left is dropped. Leaving without having joined is a no-op.
func (h *Hub) Leave(peer Peer) {
	code, ok := h.sessions.Get(peer.ID())
	if !ok {
		return
	}
	h.sessions.Delete(peer.ID())

	h.rooms.Update(code.Key(), func(members roomMembers, ok bool) (roomMembers, bool) {
		if !ok {
			return nil, false
		}
		m, present := members[peer.ID()]
		if !present {
			return members, len(members) > 0
		}
		delete(members, peer.ID())

		msg := h.encode(model.EventPlayerLeft, model.PlayerLeftPayload{
			Address: m.address,
			Count:   len(members),
		})
		h.fanOut(members, peer.ID(), msg)

		h.logger.Debug("session left room",
			slog.String("session_id", peer.ID()),
			slog.String("room_code", string(code)),
			slog.Int("count", len(members)))
		return members, len(members) > 0
	})
}

// Relay forwards a player's input to every other session in the room as a
// player-movement event stamped with server time. Nothing is retained. It
// returns how many sessions the message was queued for.
func (h *Hub) Relay(from Peer, p model.PlayerInputPayload) int {
	msg := h.encode(model.EventPlayerMovement, model.PlayerMovementPayload{
		Address:   p.Address,
		Input:     p.Input,
		Timestamp: h.clock.Now().UnixMilli(),
	})

	exclude := ""
	if from != nil {
		exclude = from.ID()
	}

	sent := 0
	h.rooms.View(p.RoomCode.Key(), func(members roomMembers, ok bool) {
		if ok {
			sent = h.fanOut(members, exclude, msg)
		}
	})
	return sent
}

// Broadcast sends an event to every session in the room
func (h *Hub) Broadcast(code model.RoomCode, eventType model.EventType, data any) int {
	sent := 0
	h.rooms.View(code.Key(), func(members roomMembers, ok bool) {
		if !ok {
			return
		}
		sent = h.fanOut(members, "", h.encode(eventType, data))
	})
	return sent
}

// fanOut must be called with the room's shard lock held
func (h *Hub) fanOut(members roomMembers, exclude string, msg []byte) int {
	if msg == nil {
		return 0
	}
	sent := 0
	for id, m := range members {
		if id == exclude {
			continue
		}
		if m.peer.Send(msg) {
			sent++
		} else {
			h.logger.Warn("relay message dropped - session buffer full",
				slog.String("session_id", id),
				slog.String("address", m.address))
		}
	}
	return sent
}

// Count returns the number of sessions in a room
func (h *Hub) Count(code model.RoomCode) int {
	n := 0
	h.rooms.View(code.Key(), func(members roomMembers, _ bool) {
		n = len(members)
	})
	return n
}

// RoomCount returns the number of rooms with at least one session
func (h *Hub) RoomCount() int {
	return h.rooms.Len()
}

// Close disconnects every session and empties the hub
func (h *Hub) Close() {
	closed := 0
	h.rooms.Sweep(func(_ string, members roomMembers) (roomMembers, bool) {
		for _, m := range members {
			m.peer.Close()
			closed++
		}
		return nil, false
	})
	h.sessions.Sweep(func(string, model.RoomCode) (model.RoomCode, bool) {
		return "", false
	})
	h.logger.Info("relay hub stopped", slog.Int("disconnected_sessions", closed))
}
