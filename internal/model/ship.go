package model

// ShipLoadout is the cosmetic descriptor a participant flies with
type ShipLoadout struct {
	Rarity string `json:"rarity"`
	Name   string `json:"name"`
	Class  string `json:"class"`
	Image  string `json:"image"`
}

// BaselineShip is served for a participant that never supplied a loadout
func BaselineShip() ShipLoadout {
	return ShipLoadout{
		Rarity: "common",
		Name:   "Starter",
		Class:  "fighter",
		Image:  "ships/starter.png",
	}
}

// IsZero returns true when no field has been set
func (s ShipLoadout) IsZero() bool {
	return s == ShipLoadout{}
}

// RoomShips holds the last known loadout per role
type RoomShips struct {
	Host  *ShipLoadout
	Guest *ShipLoadout
}

// WithDefaults fills every empty field from the baseline loadout
func (s ShipLoadout) WithDefaults() ShipLoadout {
	base := BaselineShip()
	if s.Rarity == "" {
		s.Rarity = base.Rarity
	}
	if s.Name == "" {
		s.Name = base.Name
	}
	if s.Class == "" {
		s.Class = base.Class
	}
	if s.Image == "" {
		s.Image = base.Image
	}
	return s
}
