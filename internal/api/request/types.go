package request

import "github.com/mcoot/arcaderooms/internal/model"

// Ship carries the optional loadout fields of create and join
type Ship struct {
	ShipRarity string `json:"shipRarity,omitempty"`
	ShipName   string `json:"shipName,omitempty"`
	ShipClass  string `json:"shipClass,omitempty"`
	ShipImage  string `json:"shipImage,omitempty"`
}

// Loadout returns nil when the caller supplied no ship fields
func (s Ship) Loadout() *model.ShipLoadout {
	l := model.ShipLoadout{Rarity: s.ShipRarity, Name: s.ShipName, Class: s.ShipClass, Image: s.ShipImage}
	if l.IsZero() {
		return nil
	}
	l = l.WithDefaults()
	return &l
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Mode     string `json:"mode"`
	Address  string `json:"address"`
	Ship
}

// JoinRoomRequest is the request body for joining a room as guest
type JoinRoomRequest struct {
	Address string `json:"address"`
	Ship
}

// ReadyRequest is the request body for setting a ready flag
type ReadyRequest struct {
	Address string `json:"address"`
	Ready   *bool  `json:"ready"`
}

// TransitionRequest is the optional request body of start and finish
type TransitionRequest struct {
	Address string `json:"address,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// UpdatePlayerRequest is the request body for pushing own telemetry. Absent
// fields keep their previous value.
type UpdatePlayerRequest struct {
	RoomCode   string          `json:"roomCode"`
	Address    string          `json:"address"`
	X          *float64        `json:"x,omitempty"`
	Y          *float64        `json:"y,omitempty"`
	Health     *float64        `json:"health,omitempty"`
	Bullets    *[]model.Bullet `json:"bullets,omitempty"`
	ShipImage  *string         `json:"shipImage,omitempty"`
	ShipRarity *string         `json:"shipRarity,omitempty"`
	Score      *int64          `json:"score,omitempty"`
	Coins      *int64          `json:"coins,omitempty"`
}

// Update converts the request into a partial participant update
func (r UpdatePlayerRequest) Update() model.PlayerUpdate {
	return model.PlayerUpdate{
		X:          r.X,
		Y:          r.Y,
		Health:     r.Health,
		Bullets:    r.Bullets,
		ShipImage:  r.ShipImage,
		ShipRarity: r.ShipRarity,
		Score:      r.Score,
		Coins:      r.Coins,
	}
}

// SaveMatchRequest is the request body for submitting a match result
type SaveMatchRequest struct {
	RoomCode *string `json:"roomCode,omitempty"`
	Address  string  `json:"address"`
	Score    int64   `json:"score"`
	Coins    int64   `json:"coins"`
	Mode     string  `json:"mode"`
}

// Code returns the room code, treating an empty string as absent
func (r SaveMatchRequest) Code() *model.RoomCode {
	if r.RoomCode == nil || *r.RoomCode == "" {
		return nil
	}
	code := model.RoomCode(*r.RoomCode)
	return &code
}
