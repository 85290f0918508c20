package model

import "time"

// Bullet is a projectile descriptor relayed as-is between clients
type Bullet struct {
	ID string  `json:"id,omitempty"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx,omitempty"`
	VY float64 `json:"vy,omitempty"`
}

// ParticipantState is the live telemetry of one participant in a room
type ParticipantState struct {
	Address    string
	X          float64
	Y          float64
	Health     float64
	Bullets    []Bullet
	ShipImage  string
	ShipRarity string
	Score      int64
	Coins      int64
	Timestamp  time.Time // last write
}

// PlayerUpdate is a partial write; nil fields keep their previous value
type PlayerUpdate struct {
	X          *float64
	Y          *float64
	Health     *float64
	Bullets    *[]Bullet
	ShipImage  *string
	ShipRarity *string
	Score      *int64
	Coins      *int64
}

// Apply merges the non-nil fields of u into s
func (u PlayerUpdate) Apply(s *ParticipantState) {
	if u.X != nil {
		s.X = *u.X
	}
	if u.Y != nil {
		s.Y = *u.Y
	}
	if u.Health != nil {
		s.Health = *u.Health
	}
	if u.Bullets != nil {
		s.Bullets = append([]Bullet(nil), (*u.Bullets)...)
	}
	if u.ShipImage != nil {
		s.ShipImage = *u.ShipImage
	}
	if u.ShipRarity != nil {
		s.ShipRarity = *u.ShipRarity
	}
	if u.Score != nil {
		s.Score = *u.Score
	}
	if u.Coins != nil {
		s.Coins = *u.Coins
	}
}
