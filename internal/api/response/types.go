package response

import (
	"time"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/services/shipcache"
)

// Ship represents a ship loadout in API responses
type Ship struct {
	Rarity string `json:"rarity"`
	Name   string `json:"name"`
	Class  string `json:"class"`
	Image  string `json:"image"`
}

// ShipFromModel converts a model.ShipLoadout
func ShipFromModel(s model.ShipLoadout) Ship {
	return Ship{Rarity: s.Rarity, Name: s.Name, Class: s.Class, Image: s.Image}
}

// Room is the room view returned by the room endpoints
type Room struct {
	RoomCode      string    `json:"roomCode"`
	Mode          string    `json:"mode"`
	HostAddress   string    `json:"hostAddress"`
	GuestAddress  *string   `json:"guestAddress"`
	HostReady     bool      `json:"hostReady"`
	GuestReady    bool      `json:"guestReady"`
	Status        string    `json:"status"`
	Seed          int64     `json:"seed"`
	CreatedAt     time.Time `json:"createdAt"`
	HostShip      Ship      `json:"hostShip"`
	GuestShip     *Ship     `json:"guestShip"`
	AlreadyJoined bool      `json:"alreadyJoined,omitempty"`
}

// RoomFromModel converts a room without ship information
func RoomFromModel(r *model.Room) Room {
	out := Room{
		RoomCode:    string(r.Code),
		Mode:        string(r.Mode),
		HostAddress: r.HostAddress,
		HostReady:   r.HostReady,
		GuestReady:  r.GuestReady,
		Status:      string(r.Status),
		Seed:        r.Seed,
		CreatedAt:   r.CreatedAt,
	}
	if r.HasGuest() {
		guest := r.GuestAddress
		out.GuestAddress = &guest
	}
	return out
}

// RoomFromView converts a model.RoomView
func RoomFromView(v *model.RoomView) Room {
	out := RoomFromModel(&v.Room)
	out.HostShip = ShipFromModel(v.HostShip)
	if v.GuestShip != nil {
		guest := ShipFromModel(*v.GuestShip)
		out.GuestShip = &guest
	}
	return out
}

// TransitionResponse is returned by start and finish
type TransitionResponse struct {
	Success bool  `json:"success"`
	Room    *Room `json:"room"`
}

// TransitionFromModel converts a start/finish outcome. room may be nil.
func TransitionFromModel(room *model.Room) TransitionResponse {
	resp := TransitionResponse{Success: true}
	if room != nil {
		r := RoomFromModel(room)
		resp.Room = &r
	}
	return resp
}

// Participant represents one participant's live telemetry
type Participant struct {
	Address    string         `json:"address"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Health     float64        `json:"health"`
	Bullets    []model.Bullet `json:"bullets"`
	ShipImage  string         `json:"shipImage,omitempty"`
	ShipRarity string         `json:"shipRarity,omitempty"`
	Score      int64          `json:"score"`
	Coins      int64          `json:"coins"`
	Timestamp  int64          `json:"timestamp"` // unix ms
}

// ParticipantFromModel converts a model.ParticipantState
func ParticipantFromModel(p model.ParticipantState) Participant {
	bullets := p.Bullets
	if bullets == nil {
		bullets = []model.Bullet{}
	}
	return Participant{
		Address:    p.Address,
		X:          p.X,
		Y:          p.Y,
		Health:     p.Health,
		Bullets:    bullets,
		ShipImage:  p.ShipImage,
		ShipRarity: p.ShipRarity,
		Score:      p.Score,
		Coins:      p.Coins,
		Timestamp:  p.Timestamp.UnixMilli(),
	}
}

// ParticipantsFromModel converts a list of states
func ParticipantsFromModel(states []model.ParticipantState) []Participant {
	out := make([]Participant, len(states))
	for i, p := range states {
		out[i] = ParticipantFromModel(p)
	}
	return out
}

// PlayersResponse is returned by the pull endpoint
type PlayersResponse struct {
	Players []Participant `json:"players"`
}

// Ack acknowledges a write that returns no resource
type Ack struct {
	Success bool `json:"success"`
}

// UpdatePlayerResponse acknowledges a telemetry write
type UpdatePlayerResponse struct {
	Success bool        `json:"success"`
	Player  Participant `json:"player"`
}

// CleanupResponse reports what a sweep evicted
type CleanupResponse struct {
	Success        bool `json:"success"`
	PlayersRemoved int  `json:"playersRemoved"`
	RoomsRemoved   int  `json:"roomsRemoved"`
	ShipsRemoved   int  `json:"shipsRemoved"`
}

// CleanupFromResult converts a cache cleanup result
func CleanupFromResult(r shipcache.CleanupResult) CleanupResponse {
	return CleanupResponse{
		Success:        true,
		PlayersRemoved: r.PlayersRemoved,
		RoomsRemoved:   r.RoomsRemoved,
		ShipsRemoved:   r.ShipsRemoved,
	}
}

// Match represents a recorded match
type Match struct {
	ID        string    `json:"id"`
	RoomCode  *string   `json:"roomCode"`
	Address   string    `json:"address"`
	Score     int64     `json:"score"`
	Coins     int64     `json:"coins"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}

// MatchFromModel converts a model.Match
func MatchFromModel(m *model.Match) Match {
	out := Match{
		ID:        string(m.ID),
		Address:   m.Address,
		Score:     m.Score,
		Coins:     m.Coins,
		Mode:      string(m.Mode),
		CreatedAt: m.CreatedAt,
	}
	if m.RoomCode != nil {
		code := string(*m.RoomCode)
		out.RoomCode = &code
	}
	return out
}

// SaveMatchResponse is returned by match submission
type SaveMatchResponse struct {
	Match     Match `json:"match"`
	Duplicate bool  `json:"duplicate"`
}

// MatchListResponse is returned by the match history endpoint
type MatchListResponse struct {
	Matches []Match `json:"matches"`
}

// MatchesFromModel converts a list of matches
func MatchesFromModel(matches []*model.Match) []Match {
	out := make([]Match, len(matches))
	for i, m := range matches {
		out[i] = MatchFromModel(m)
	}
	return out
}

// Health is the health check body
type Health struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}
