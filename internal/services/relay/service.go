// Package relay carries live telemetry between the participants of a room,
// over a pull transport backed by the ship cache and a websocket push channel.
// The two transports share no consistency guarantee.
package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/arcaderooms/internal/dependencies/clock"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/services/shipcache"
)

// Service is the pull transport
type Service struct {
	cache   *shipcache.Cache
	hub     *Hub
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates the pull transport. timeout is how long a participant
// entry survives without a write.
func NewService(cache *shipcache.Cache, hub *Hub, clock clock.Clock, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = shipcache.DefaultPlayerTimeout
	}
	return &Service{
		cache:   cache,
		hub:     hub,
		clock:   clock,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "relay")),
	}
}

func validate(code model.RoomCode, address string) error {
	if err := code.Validate(); err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("%w: address is required", model.ErrValidation)
	}
	return nil
}

// UpdatePlayer merges the caller's own telemetry into the cache
func (s *Service) UpdatePlayer(code model.RoomCode, address string, update model.PlayerUpdate) (model.ParticipantState, error) {
	if err := validate(code, address); err != nil {
		return model.ParticipantState{}, err
	}
	return s.cache.UpdatePlayer(code, address, update), nil
}

// OtherPlayers returns the telemetry of everyone in the room except address
func (s *Service) OtherPlayers(code model.RoomCode, address string) ([]model.ParticipantState, error) {
	if err := validate(code, address); err != nil {
		return nil, err
	}
	return s.cache.OtherPlayers(code, address), nil
}

// Cleanup evicts stale participant entries as of now
func (s *Service) Cleanup() shipcache.CleanupResult {
	res := s.cache.Cleanup(s.clock.Now(), s.timeout)
	if res.PlayersRemoved > 0 || res.RoomsRemoved > 0 || res.ShipsRemoved > 0 {
		s.logger.Info("relay cleanup",
			slog.Int("players_removed", res.PlayersRemoved),
			slog.Int("rooms_removed", res.RoomsRemoved),
			slog.Int("ships_removed", res.ShipsRemoved))
	}
	return res
}

// Stats is a snapshot of relay occupancy
type Stats struct {
	CachedRooms int `json:"cached_rooms"`
	LiveRooms   int `json:"live_rooms"`
}

// Stats reports how many rooms hold cached telemetry and live sessions
func (s *Service) Stats() Stats {
	return Stats{
		CachedRooms: s.cache.RoomCount(),
		LiveRooms:   s.hub.RoomCount(),
	}
}

// NotifyRoom pushes a room-updated event carrying payload to every live
// session in the room
func (s *Service) NotifyRoom(code model.RoomCode, payload any) int {
	return s.hub.Broadcast(code, model.EventRoomUpdated, payload)
}
