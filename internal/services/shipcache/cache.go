// Package shipcache holds the process-local, loss-tolerant state of live
// rooms: each participant's ship loadout and their latest telemetry.
package shipcache

import (
	"log/slog"
	"time"

	"github.com/mcoot/arcaderooms/internal/dependencies/clock"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/syncutil"
)

// DefaultPlayerTimeout is how long a participant entry survives without a write
const DefaultPlayerTimeout = 60 * time.Second

// Config controls cache sharding and ship retention
type Config struct {
	// Shards is the number of independently locked partitions
	Shards int

	// ShipTTL evicts loadouts not refreshed for this long; zero keeps them
	// until the process exits
	ShipTTL time.Duration
}

// DefaultConfig returns the cache defaults
func DefaultConfig() Config {
	return Config{
		Shards:  syncutil.DefaultShards,
		ShipTTL: 24 * time.Hour,
	}
}

type shipEntry struct {
	ships     model.RoomShips
	updatedAt time.Time
}

type roomPlayers map[string]model.ParticipantState

// Cache is the ephemeral ship and player store. Room codes are case-folded
// so every casing of a code shares one entry.
type Cache struct {
	ships   *syncutil.ShardedMap[shipEntry]
	players *syncutil.ShardedMap[roomPlayers]
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
}

// New creates an empty cache
func New(clock clock.Clock, cfg Config, logger *slog.Logger) *Cache {
	return &Cache{
		ships:   syncutil.NewShardedMap[shipEntry](cfg.Shards),
		players: syncutil.NewShardedMap[roomPlayers](cfg.Shards),
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "shipcache")),
	}
}

// SetShip stores the loadout for one role of a room, replacing any previous one
func (c *Cache) SetShip(code model.RoomCode, role model.Role, loadout model.ShipLoadout) {
	now := c.clock.Now()
	c.ships.Update(code.Key(), func(entry shipEntry, _ bool) (shipEntry, bool) {
		l := loadout
		switch role {
		case model.RoleHost:
			entry.ships.Host = &l
		case model.RoleGuest:
			entry.ships.Guest = &l
		}
		entry.updatedAt = now
		return entry, true
	})
}

// Ships returns the stored loadouts of a room; missing roles are nil
func (c *Cache) Ships(code model.RoomCode) model.RoomShips {
	entry, ok := c.ships.Get(code.Key())
	if !ok {
		return model.RoomShips{}
	}
	out := model.RoomShips{}
	if entry.ships.Host != nil {
		h := *entry.ships.Host
		out.Host = &h
	}
	if entry.ships.Guest != nil {
		g := *entry.ships.Guest
		out.Guest = &g
	}
	return out
}

// UpdatePlayer merges update into the caller's own entry and stamps it with
// the current time. It returns the merged state.
func (c *Cache) UpdatePlayer(code model.RoomCode, address string, update model.PlayerUpdate) model.ParticipantState {
	now := c.clock.Now()
	var merged model.ParticipantState
	c.players.Update(code.Key(), func(players roomPlayers, ok bool) (roomPlayers, bool) {
		if !ok {
			players = make(roomPlayers)
		}
		state := players[address]
		state.Address = address
		update.Apply(&state)
		state.Timestamp = now
		players[address] = state
		merged = state
		return players, true
	})
	return merged
}

// OtherPlayers returns every participant of the room except excluding, in no
// particular order
func (c *Cache) OtherPlayers(code model.RoomCode, excluding string) []model.ParticipantState {
	result := make([]model.ParticipantState, 0)
	c.players.View(code.Key(), func(players roomPlayers, ok bool) {
		if !ok {
			return
		}
		for address, state := range players {
			if address == excluding {
				continue
			}
			state.Bullets = append([]model.Bullet(nil), state.Bullets...)
			result = append(result, state)
		}
	})
	return result
}

// CleanupResult counts what a sweep evicted
type CleanupResult struct {
	PlayersRemoved int `json:"players_removed"`
	RoomsRemoved   int `json:"rooms_removed"`
	ShipsRemoved   int `json:"ships_removed"`
}

// Cleanup evicts participant entries last written more than timeout before
// now, dropping a room once it has no participants left. Ship loadouts older
// than the configured ShipTTL go in the same pass.
func (c *Cache) Cleanup(now time.Time, timeout time.Duration) CleanupResult {
	var res CleanupResult

	c.players.Sweep(func(_ string, players roomPlayers) (roomPlayers, bool) {
		for address, state := range players {
			if now.Sub(state.Timestamp) > timeout {
				delete(players, address)
				res.PlayersRemoved++
			}
		}
		if len(players) == 0 {
			res.RoomsRemoved++
			return nil, false
		}
		return players, true
	})

	if c.cfg.ShipTTL > 0 {
		c.ships.Sweep(func(_ string, entry shipEntry) (shipEntry, bool) {
			if now.Sub(entry.updatedAt) > c.cfg.ShipTTL {
				res.ShipsRemoved++
				return entry, false
			}
			return entry, true
		})
	}

	if res.PlayersRemoved > 0 || res.ShipsRemoved > 0 {
		c.logger.Debug("cache swept",
			slog.Int("players_removed", res.PlayersRemoved),
			slog.Int("rooms_removed", res.RoomsRemoved),
			slog.Int("ships_removed", res.ShipsRemoved),
		)
	}
	return res
}

// RoomCount returns how many rooms currently hold participant state
func (c *Cache) RoomCount() int {
	return c.players.Len()
}
